// Package server exposes a trained model over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/internal/version"
)

const (
	headerRequestID = "X-Request-Id"

	// DefaultMaxPairs bounds a single predict request.
	DefaultMaxPairs = 256
)

// ModelInfo is served by GET /v1/model.
type ModelInfo struct {
	Name            string         `json:"name"`
	Config          model.Config   `json:"config"`
	Parameters      int            `json:"parameters"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
	CPU             cpu.Info       `json:"cpu"`
	Version         string         `json:"version"`
}

// PredictRequest is the body of POST /v1/predict.
type PredictRequest struct {
	Pairs []Pair `json:"pairs"`
}

// PredictResponse is returned by POST /v1/predict.
type PredictResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Created int64     `json:"created"`
	Scores  []float32 `json:"scores"`
}

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Server holds the HTTP handlers.
type Server struct {
	predictor Predictor
	info      ModelInfo
	log       logger.Logger
	maxPairs  int
	clock     func() time.Time
}

// New creates a server. info.CPU and info.Version are filled in when
// empty.
func New(predictor Predictor, info ModelInfo, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if info.CPU.Arch == "" {
		info.CPU = cpu.HostInfo()
	}
	if info.Version == "" {
		info.Version = version.Resolve().Version
	}
	return &Server{
		predictor: predictor,
		info:      info,
		log:       log,
		maxPairs:  DefaultMaxPairs,
		clock:     time.Now,
	}
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/model", s.handleModel)
	e.POST("/v1/predict", s.handlePredict)
}

// Echo returns an instance with request logging, panic recovery and the
// routes registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string, readTimeout time.Duration) error {
	s.log.Info("starting server", "address", addr, "model", s.info.Name)
	sc := echo.StartConfig{
		Address: addr,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = readTimeout
			return nil
		},
	}
	return sc.Start(ctx, s.Echo())
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModel(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.info)
}

func (s *Server) handlePredict(c *echo.Context) error {
	id := c.Request().Header.Get(headerRequestID)
	if id == "" {
		id = "pred_" + uuid.NewString()
	}
	c.Response().Header().Set(headerRequestID, id)

	req, err := decodeJSON[PredictRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "invalid JSON body: "+err.Error())
	}
	switch {
	case len(req.Pairs) == 0:
		return writeBadRequest(c, "pairs must not be empty")
	case len(req.Pairs) > s.maxPairs:
		return writeBadRequest(c, "too many pairs")
	}
	for _, p := range req.Pairs {
		if strings.TrimSpace(p.Sentence1) == "" {
			return writeBadRequest(c, "sentence1 is required")
		}
	}

	started := s.clock()
	scores, err := s.predictor.Predict(c.Request().Context(), req.Pairs)
	if err != nil {
		s.log.Error("predict failed", "request_id", id, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	s.log.Debug("predicted", "request_id", id, "pairs", len(req.Pairs), "elapsed", s.clock().Sub(started))

	return c.JSON(http.StatusOK, PredictResponse{
		ID:      id,
		Model:   s.info.Name,
		Created: started.Unix(),
		Scores:  scores,
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{"error": ErrorBody{Message: msg, Type: errType}})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, errors.New("empty body")
		}
		return out, err
	}
	return out, nil
}
