package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-gateway/internal/gateway"
	"github.com/tinywideclouds/go-push-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

const (
	maxRequestBody   = 64 << 10
	defaultListLimit = 20
	maxListLimit     = 100
)

// dispatchFailure is the error body when a receipt was recorded for a
// failed dispatch.
type dispatchFailure struct {
	Error     string `json:"error"`
	ReceiptID string `json:"receipt_id"`
}

type PushAPI struct {
	Sender   pipeline.Sender
	Receipts dispatch.ReceiptStore
	Logger   *slog.Logger
}

func NewPushAPI(sender pipeline.Sender, receipts dispatch.ReceiptStore, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Sender:   sender,
		Receipts: receipts,
		Logger:   logger.With("component", "PushAPI"),
	}
}

// SendPush dispatches one push synchronously and returns its receipt.
func (api *PushAPI) SendPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var p push.Push
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&p); err != nil {
		api.Logger.Warn("SendPush: decode failed", "caller", caller, "err", err)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.WriteJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if errors.Is(err, push.ErrMultipleProviders) {
			response.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		response.WriteJSONError(w, http.StatusBadRequest, "invalid push json")
		return
	}

	receipt, err := api.Sender.Send(ctx, &p)
	if err != nil {
		status := statusForError(err)
		api.Logger.Error("SendPush: dispatch failed", "caller", caller, "provider", p.Provider().String(), "status", status, "err", err)
		if receipt != nil {
			writeJSON(w, status, dispatchFailure{Error: err.Error(), ReceiptID: receipt.ID})
			return
		}
		response.WriteJSONError(w, status, err.Error())
		return
	}

	api.Logger.Info("SendPush: dispatched", "caller", caller, "receipt_id", receipt.ID, "sent", receipt.Sent)
	writeJSON(w, http.StatusOK, receipt)
}

func (api *PushAPI) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing receipt id")
		return
	}

	receipt, err := api.Receipts.Get(r.Context(), id)
	if errors.Is(err, dispatch.ErrReceiptNotFound) {
		response.WriteJSONError(w, http.StatusNotFound, "receipt not found")
		return
	}
	if err != nil {
		api.Logger.Error("GetReceipt: storage failed", "id", id, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (api *PushAPI) ListReceipts(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing target")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	receipts, err := api.Receipts.ListForTarget(r.Context(), target, limit)
	if err != nil {
		api.Logger.Error("ListReceipts: storage failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func statusForError(err error) int {
	var tooLarge *push.PayloadTooLargeError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, gateway.ErrNoProvider), errors.Is(err, dispatch.ErrInvalidPush):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
