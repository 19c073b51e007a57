package transcribe_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/transcribe"
	"github.com/stretchr/testify/require"
)

func newClient(url string, timeout int) *transcribe.WhisperClient {
	return transcribe.NewWhisperClient(config.Whisper{
		APIKey:         "sk-test",
		URL:            url,
		Model:          "whisper-1",
		TimeoutSeconds: timeout,
	}, logger.NewDiscard())
}

func TestWhisperClient_Transcribe(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "whisper-1", r.FormValue("model"))
		require.Equal(t, "pt", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "talk_000.mp3", header.Filename)
		require.Equal(t, []byte("chunk-bytes"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"olá mundo"}`))
	}))
	defer srv.Close()

	// when
	text, err := newClient(srv.URL, 5).Transcribe(context.Background(), []byte("chunk-bytes"), "/tmp/x/talk_000.mp3", "pt")

	// then
	require.NoError(t, err)
	require.Equal(t, "olá mundo", text)
}

func TestWhisperClient_OmitsEmptyLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, present := r.MultipartForm.Value["language"]
		require.False(t, present)
		_, _ = w.Write([]byte(`{"text":"hi"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 5).Transcribe(context.Background(), []byte("x"), "a.mp3", "")
	require.NoError(t, err)
}

func TestWhisperClient_StatusMapping(t *testing.T) {
	cases := map[int]transcribe.ErrorKind{
		http.StatusBadRequest:            transcribe.KindBadRequest,
		http.StatusUnsupportedMediaType:  transcribe.KindBadRequest,
		http.StatusUnauthorized:          transcribe.KindAuth,
		http.StatusForbidden:             transcribe.KindAuth,
		http.StatusRequestEntityTooLarge: transcribe.KindPayloadTooLarge,
		http.StatusTooManyRequests:       transcribe.KindRateLimited,
		http.StatusInternalServerError:   transcribe.KindUnavailable,
		http.StatusServiceUnavailable:    transcribe.KindUnavailable,
	}
	for status, kind := range cases {
		t.Run(http.StatusText(status), func(t *testing.T) {
			// given
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"internal upstream detail sk-live-123"}}`))
			}))
			defer srv.Close()

			// when
			_, err := newClient(srv.URL, 5).Transcribe(context.Background(), []byte("x"), "a.mp3", "")

			// then
			var pe *transcribe.ProviderError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, status, pe.StatusCode)
			require.Equal(t, kind, pe.Kind)
			require.True(t, transcribe.IsKind(err, kind))
			require.Contains(t, pe.Detail, "upstream detail")
			require.NotContains(t, err.Error(), "sk-live-123")
		})
	}
}

func TestWhisperClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newClient(url, 5).Transcribe(context.Background(), []byte("x"), "a.mp3", "")

	require.True(t, transcribe.IsKind(err, transcribe.KindUnavailable))
}

func TestWhisperClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(srv.URL, 5).Transcribe(ctx, []byte("x"), "a.mp3", "")

	require.True(t, transcribe.IsKind(err, transcribe.KindUnavailable))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
