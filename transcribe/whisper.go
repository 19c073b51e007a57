package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
)

const maxDetailSize = 4096

// WhisperClient calls the OpenAI audio transcription endpoint.
type WhisperClient struct {
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client
	log     logger.AppLogger
}

var _ Client = (*WhisperClient)(nil)

func NewWhisperClient(cfg config.Whisper, log logger.AppLogger) *WhisperClient {
	return &WhisperClient{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.Timeout(),
		http:    &http.Client{},
		log:     log.With(slog.String("service", "whisper")),
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, fileName, language string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, contentType, err := c.buildForm(audio, fileName, language)
	if err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ProviderError{StatusCode: http.StatusServiceUnavailable, Kind: KindUnavailable, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailSize))
		pe := &ProviderError{StatusCode: resp.StatusCode, Kind: KindForStatus(resp.StatusCode), Detail: string(raw)}
		c.log.Warn("transcription provider returned an error",
			slog.Int("status", resp.StatusCode),
			slog.String("kind", string(pe.Kind)),
			slog.String("detail", pe.Detail))
		return "", pe
	}

	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{StatusCode: http.StatusBadGateway, Kind: KindUnavailable, Detail: "malformed response body", Err: err}
	}

	c.log.Debug("chunk transcribed",
		slog.String("file", fileName),
		slog.Int("bytes", len(audio)),
		slog.Duration("took", time.Since(started)))
	return out.Text, nil
}

func (c *WhisperClient) buildForm(audio []byte, fileName, language string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.model); err != nil {
		return nil, "", err
	}
	if lang := strings.TrimSpace(language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(fileName))
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}
