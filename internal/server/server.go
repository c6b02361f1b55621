package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"llm-gateway/internal/config"
	"llm-gateway/internal/models"
	"llm-gateway/internal/observability"
	"llm-gateway/internal/provider"
	"llm-gateway/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 90 * time.Second
	idleTimeout         = 120 * time.Second
)

// ChatService serves canonical chat completions and lists served models.
type ChatService interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	Models() []models.ModelInfo
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for access and error logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records HTTP metrics and exposes GET /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is the HTTP front door of the gateway.
type Server struct {
	cfg     config.Config
	chat    ChatService
	metrics *observability.Metrics
	logger  *slog.Logger
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, chat ChatService, opts ...Option) (*Server, error) {
	if chat == nil {
		return nil, errors.New("chat service must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:     cfg,
		chat:    chat,
		logger:  slog.Default(),
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}
	for _, opt := range opts {
		opt(srv)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			srv.logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	if srv.metrics != nil {
		e.Use(srv.metrics.Middleware())
	}

	srv.app = e
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the configured echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.printStartupBanner(os.Stdout)
	s.logger.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleRoot)
	s.app.GET("/health", s.handleHealth)
	if s.metrics != nil && s.cfg.Observability.Metrics {
		s.app.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.app.Group(s.cfg.Server.APIPrefix)
	api.POST("/chat/completions", s.handleChatCompletions)
	api.GET("/models", s.handleModels)
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "LLM Gateway is running"})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.FromModels(s.chat.Models()))
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	var req translator.ChatCompletionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	resp, err := s.chat.Chat(c.Request().Context(), req.ToCanonical())
	if err != nil {
		return toHTTPError(err)
	}
	if resp == nil {
		return s.internalError(c, errors.New("chat service returned an empty response"))
	}

	wire, err := translator.FromCanonical(resp)
	if err != nil {
		return s.internalError(c, fmt.Errorf("encode response: %w", err))
	}
	return c.JSON(http.StatusOK, wire)
}

func (s *Server) internalError(c echo.Context, err error) error {
	s.logger.ErrorContext(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
	return requestError{
		Status:  http.StatusInternalServerError,
		Message: internalErrorMessage,
		Type:    errorTypeServer,
	}
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		var verr *models.ValidationError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is required")
		case errors.As(err, &verr):
			return badRequest(verr.Error())
		case errors.As(err, &tooLarge):
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				Type:    errorTypeInvalidRequest,
			}
		default:
			return badRequest(fmt.Sprintf("invalid JSON payload: %v", err))
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

func (s *Server) printStartupBanner(w io.Writer) {
	host := "127.0.0.1"
	port := s.cfg.Server.Port
	prefix := s.cfg.Server.APIPrefix
	fmt.Fprintln(w)
	fmt.Fprintln(w, "llm-gateway ready")
	fmt.Fprintf(w, "Listening on http://%s:%d\n", host, port)
	fmt.Fprintln(w, "Endpoints:")
	fmt.Fprintln(w, "  GET  /health")
	fmt.Fprintf(w, "  POST %s/chat/completions\n", prefix)
	fmt.Fprintf(w, "  GET  %s/models\n", prefix)
	if s.metrics != nil && s.cfg.Observability.Metrics {
		fmt.Fprintln(w, "  GET  /metrics")
	}
	fmt.Fprintf(w, "Example:\n  curl http://%s:%d%s/chat/completions -H 'Content-Type: application/json' -d '{\"model\":\"gemini-2.0-flash\",\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port, prefix)
}

// toHTTPError maps domain errors onto client responses. Anything that is not
// a validation or configuration problem becomes a generic 500; the cause has
// already been logged by the engine.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return badRequest(verr.Error())
	}

	var cerr *provider.ConfigurationError
	if errors.As(err, &cerr) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: cerr.Error(),
			Type:    errorTypeConfiguration,
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: internalErrorMessage,
		Type:    errorTypeServer,
	}
}
