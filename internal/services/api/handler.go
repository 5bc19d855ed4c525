// Package api exposes the order ledger, settlement and cashier operations
// over HTTP to the staff terminals.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cantina-pos/internal/logger"
	"cantina-pos/internal/models"
	"cantina-pos/internal/services/cashier"
	"cantina-pos/internal/services/ledger"
	"cantina-pos/internal/services/settlement"
)

// Handler handles HTTP requests for the POS service
type Handler struct {
	ledger     *ledger.Service
	settlement *settlement.Service
	cashier    *cashier.Service
	logger     *logger.Logger
}

// NewHandler creates a new POS handler
func NewHandler(led *ledger.Service, set *settlement.Service, cash *cashier.Service, log *logger.Logger) *Handler {
	return &Handler{
		ledger:     led,
		settlement: set,
		cashier:    cash,
		logger:     log,
	}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/orders", h.withLogging(h.OpenOrder))
	mux.HandleFunc("/orders/items", h.withLogging(h.AppendItems))
	mux.HandleFunc("/items/adjust", h.withLogging(h.AdjustQuantity))
	mux.HandleFunc("/items/remove", h.withLogging(h.RemoveItem))
	mux.HandleFunc("/tabs", h.withLogging(h.GetTab))
	mux.HandleFunc("/settlements", h.withLogging(h.Settle))
	mux.HandleFunc("/cashier/open", h.withLogging(h.OpenCashier))
	mux.HandleFunc("/cashier/close", h.withLogging(h.CloseCashier))
	mux.HandleFunc("/expenses", h.withLogging(h.RecordExpense))
	mux.HandleFunc("/health", h.withLogging(h.HealthCheck))

	return mux
}

// OpenOrder handles POST /orders requests
func (h *Handler) OpenOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.OpenOrderRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	response, err := h.ledger.OpenOrder(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, response)
}

// AppendItems handles POST /orders/items requests
func (h *Handler) AppendItems(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.AppendItemsRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	response, err := h.ledger.AppendItems(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

// AdjustQuantity handles POST /items/adjust requests
func (h *Handler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.AdjustQuantityRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	item, removed, err := h.ledger.AdjustQuantity(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	if removed {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"line_item_id": req.LineItemID,
			"removed":      true,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// RemoveItem handles POST /items/remove requests
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.RemoveItemRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.ledger.RemoveItem(ctx, &req, requestID); err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"line_item_id": req.LineItemID,
		"removed":      true,
	})
}

// GetTab handles GET /tabs?occupant= requests
func (h *Handler) GetTab(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	occupant := r.URL.Query().Get("occupant")
	if occupant == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "occupant query parameter is required", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, err := h.ledger.ListOpenItems(ctx, occupant)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, &models.TabResponse{
		Occupant: occupant,
		Items:    items,
		Subtotal: models.Subtotal(items),
	})
}

// Settle handles POST /settlements requests
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.SettleRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.settlement.Settle(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// OpenCashier handles POST /cashier/open requests
func (h *Handler) OpenCashier(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.OpenCashierRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	session, err := h.cashier.Open(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, session)
}

// CloseCashier handles POST /cashier/close requests
func (h *Handler) CloseCashier(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.CloseCashierRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	session, err := h.cashier.Close(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

// RecordExpense handles POST /expenses requests
func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.ExpenseRequest
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	expense, err := h.cashier.RecordExpense(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, expense)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.ledger.HealthCheck(ctx)

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "pos-service",
	}

	if healthy {
		h.writeJSON(w, http.StatusOK, response)
	} else {
		response["status"] = "unhealthy"
		h.writeJSON(w, http.StatusServiceUnavailable, response)
	}
}

// decodeJSON parses a POST body, rejecting anything that is not valid JSON
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, requestID string) bool {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return false
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}

	return true
}

// writeError maps domain errors onto HTTP statuses. Every conflict and
// validation error keeps its specific message; only internal failures are
// masked.
func (h *Handler) writeError(w http.ResponseWriter, err error, requestID string) {
	var verr models.ValidationError
	var mismatch *models.SettlementMismatchError

	switch {
	case errors.As(err, &verr):
		h.writeErrorResponse(w, http.StatusBadRequest, verr.Error(), requestID)
	case errors.As(err, &mismatch):
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      "settlement_mismatch",
			"message":    mismatch.Error(),
			"settled":    mismatch.Settled,
			"unsettled":  mismatch.Unsettled,
			"request_id": requestID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
	case models.IsConflict(err):
		h.writeErrorResponse(w, http.StatusConflict, err.Error(), requestID)
	case errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrLineItemNotFound),
		errors.Is(err, models.ErrSessionNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, err.Error(), requestID)
	default:
		h.logger.Error("request_failed", "Internal error handling request", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	h.writeJSON(w, statusCode, map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return logger.GenerateRequestID()
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(rw, r)

		duration := time.Since(start)
		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
