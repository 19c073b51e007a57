package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"
	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
	"github.com/jupark12/go-transcription-queue/queue"
	"github.com/jupark12/go-transcription-queue/service"
	"github.com/rs/cors"
)

const (
	apiPrefix    = "/api/transcriptions"
	healthPath   = apiPrefix + "/health"
	apiKeyHeader = "X-API-Key"
	serviceName  = "transcription-api"
	version      = "1.0.0"

	// multipart framing on top of the file itself
	formOverheadBytes = 1 << 20
	maxMemoryBytes    = 32 << 20
)

// Server exposes the job service over HTTP and streams job updates on /ws.
type Server struct {
	svc       service.JobService
	wsManager *WebSocketManager
	upgrader  websocket.Upgrader
	decoder   *schema.Decoder
	httpSrv   *http.Server
	apiKey    string
	maxUpload int64
	log       logger.AppLogger
}

type createForm struct {
	Language          string `schema:"language"`
	MaxSegmentSeconds int    `schema:"max_segment_seconds"`
}

type retryForm struct {
	MaxSegmentSeconds int `schema:"max_segment_seconds"`
}

type listQuery struct {
	Status string `schema:"status"`
}

type statisticsResponse struct {
	models.Statistics
	HasJobsProcessing bool `json:"has_jobs_processing"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
	TraceID string `json:"trace_id"`
}

func NewServer(cfg config.Config, svc service.JobService, wsManager *WebSocketManager, log logger.AppLogger) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		svc:       svc,
		wsManager: wsManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		decoder:   decoder,
		apiKey:    cfg.APIKey,
		maxUpload: cfg.MaxFileSizeBytes(),
		log:       log.With(slog.String("service", "http")),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain: CORS, then the API key gate, then the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiPrefix, s.handleCreate)
	mux.HandleFunc("GET "+apiPrefix, s.handleList)
	mux.HandleFunc("GET "+apiPrefix+"/stats", s.handleStatistics)
	mux.HandleFunc("GET "+healthPath, s.handleHealth)
	mux.HandleFunc("GET "+apiPrefix+"/{id}", s.handleGet)
	mux.HandleFunc("DELETE "+apiPrefix+"/{id}", s.handleDelete)
	mux.HandleFunc("POST "+apiPrefix+"/{id}/retry", s.handleRetry)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", apiKeyHeader},
	}).Handler(s.requireAPIKey(mux))
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", slog.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || !strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == healthPath {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverheadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds the maximum upload size")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var form createForm
	if err := s.decoder.Decode(&form, r.PostForm); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid form fields: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "missing audio file in form field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	job, err := s.svc.CreateJob(r.Context(), service.CreateJobRequest{
		Data:              data,
		FileName:          header.Filename,
		Language:          form.Language,
		MaxSegmentSeconds: form.MaxSegmentSeconds,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, models.NewJobResponse(job))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var query listQuery
	if err := s.decoder.Decode(&query, r.URL.Query()); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	var filter *models.JobStatus
	if query.Status != "" {
		status, err := models.ParseStatus(query.Status)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid status parameter")
			return
		}
		filter = &status
	}

	jobs, err := s.svc.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.NewJobResponses(jobs))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.NewJobResponse(job))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteJob(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid form body")
		return
	}
	var form retryForm
	if err := s.decoder.Decode(&form, r.Form); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid form fields: "+err.Error())
		return
	}

	job, err := s.svc.RetryJob(r.Context(), r.PathValue("id"), form.MaxSegmentSeconds)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.NewJobResponse(job))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetStatistics(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statisticsResponse{
		Statistics:        stats,
		HasJobsProcessing: stats.HasJobsProcessing(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"service": serviceName,
		"version": version,
	})
}

// handleWebSocket sends the current job list, then registers the connection for updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade to websocket", slog.String("error", err.Error()))
		return
	}

	// written before registration so the broadcast loop is never a concurrent writer
	jobs, err := s.svc.ListJobs(r.Context(), nil)
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(Message{Type: "initial_jobs", Jobs: models.NewJobResponses(jobs)}); err != nil {
			conn.Close()
			return
		}
	} else {
		s.log.Error("failed to list jobs for websocket client", err)
	}

	s.wsManager.RegisterClient(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				return
			}
		}
	}()
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *service.ValidationError
		storageErr    *service.StorageError
	)
	switch {
	case errors.Is(err, service.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		s.writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &validationErr):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
		s.writeError(w, r, http.StatusServiceUnavailable, "the job queue is full, try again later")
	case errors.As(err, &storageErr):
		s.writeInternalError(w, r, "failed to store the upload", err)
	default:
		s.writeInternalError(w, r, "internal server error", err)
	}
}

func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	traceID := uuid.NewString()
	s.log.Error("request failed", err,
		slog.String("trace_id", traceID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	s.writeErrorBody(w, r, http.StatusInternalServerError, message, traceID)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeErrorBody(w, r, status, message, uuid.NewString())
}

func (s *Server) writeErrorBody(w http.ResponseWriter, r *http.Request, status int, message, traceID string) {
	s.writeJSON(w, status, errorResponse{
		Status:  status,
		Error:   http.StatusText(status),
		Message: message,
		Path:    r.URL.Path,
		TraceID: traceID,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}
