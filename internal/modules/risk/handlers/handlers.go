// Package handlers provides HTTP handlers for the VaR engine.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/varisk/internal/modules/risk"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"

	maxBodyBytes = 1 << 20
)

// Engine is the subset of *risk.Engine the handlers need
type Engine interface {
	Calculate(ctx context.Context, req risk.Request) (*risk.VaRReport, error)
	AppendReturns(ctx context.Context, asset string, values []float64) (int, error)
	Returns(ctx context.Context, asset string) ([]float64, error)
	Assets(ctx context.Context) ([]risk.AssetHistory, error)
}

// Handler handles risk HTTP requests
type Handler struct {
	engine      Engine
	lockTimeout time.Duration
	log         zerolog.Logger
}

// NewHandler creates a new risk handler. lockTimeout bounds how long a
// request waits for the engine before answering 503.
func NewHandler(engine Engine, lockTimeout time.Duration, log zerolog.Logger) *Handler {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Handler{
		engine:      engine,
		lockTimeout: lockTimeout,
		log:         log.With().Str("handler", "risk").Logger(),
	}
}

// AppendReturnsRequest is the body of POST /api/risk/returns/{asset}
type AppendReturnsRequest struct {
	Returns []float64 `json:"returns"`
}

// SeriesResponse describes one asset's stored history
type SeriesResponse struct {
	Asset   string    `json:"asset"`
	Returns []float64 `json:"returns,omitempty"`
	Length  int       `json:"length"`
}

// HandleCalculateVaR handles POST /api/risk/var
func (h *Handler) HandleCalculateVaR(w http.ResponseWriter, r *http.Request) {
	var req risk.Request
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.lockTimeout)
	defer cancel()

	report, err := h.engine.Calculate(ctx, req)
	if err != nil {
		h.handleEngineError(w, r, err, "Failed to calculate VaR")
		return
	}

	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": report.Timestamp.Format(time.RFC3339),
		},
	})
}

// HandleAppendReturns handles POST /api/risk/returns/{asset}
func (h *Handler) HandleAppendReturns(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	var req AppendReturnsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Returns) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "returns must not be empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.lockTimeout)
	defer cancel()

	length, err := h.engine.AppendReturns(ctx, asset, req.Returns)
	if err != nil {
		h.handleEngineError(w, r, err, "Failed to append returns")
		return
	}

	h.writeResponse(w, r, http.StatusAccepted, map[string]interface{}{
		"data": SeriesResponse{Asset: asset, Length: length},
	})
}

// HandleGetReturns handles GET /api/risk/returns/{asset}
func (h *Handler) HandleGetReturns(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	ctx, cancel := context.WithTimeout(r.Context(), h.lockTimeout)
	defer cancel()

	returns, err := h.engine.Returns(ctx, asset)
	if err != nil {
		h.handleEngineError(w, r, err, "Failed to read returns")
		return
	}

	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{
		"data": SeriesResponse{Asset: asset, Returns: returns, Length: len(returns)},
	})
}

// HandleListAssets handles GET /api/risk/assets
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.lockTimeout)
	defer cancel()

	assets, err := h.engine.Assets(ctx)
	if err != nil {
		h.handleEngineError(w, r, err, "Failed to list assets")
		return
	}

	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{
		"data": assets,
		"metadata": map[string]interface{}{
			"count": len(assets),
		},
	})
}

func (h *Handler) handleEngineError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, risk.ErrInvalidInput):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, risk.ErrUnavailable):
		h.log.Warn().Err(err).Msg(msg)
		w.Header().Set("Retry-After", "1")
		h.writeError(w, r, http.StatusServiceUnavailable, "risk engine busy, retry later")
	default:
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, r, http.StatusInternalServerError, msg)
	}
}

// decode reads a JSON or msgpack body depending on Content-Type
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	if mediaType(r.Header.Get("Content-Type")) == contentTypeMsgpack {
		dec := msgpack.NewDecoder(body)
		dec.SetCustomStructTag("json")
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("invalid msgpack body: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeResponse(w, r, status, map[string]string{"error": msg})
}

// writeResponse encodes msgpack when the client asks for it, JSON otherwise
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if acceptsMsgpack(r) {
		w.Header().Set("Content-Type", contentTypeMsgpack)
		w.WriteHeader(status)

		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(data); err != nil {
			h.log.Error().Err(err).Msg("Failed to encode msgpack response")
		}
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func acceptsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if mediaType(part) == contentTypeMsgpack {
			return true
		}
	}
	return false
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(header))
	if err != nil {
		return ""
	}
	return mt
}
