// Package handler exposes the ingestion service over HTTP: the batch
// integrate endpoint and the two credit lookups.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	"github.com/fiscal-credits/creditledger/internal/ingestion/validator"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 4 << 20

// Service is what the handlers need from the ingestion service.
type Service interface {
	IntegrateCredits(ctx context.Context, items []ingestion.CreditInput) ingestion.BatchResult
	GetCredit(ctx context.Context, creditNumber string) (ingestion.CreditInput, error)
	ListCreditsByInvoice(ctx context.Context, invoiceNumber string) ([]ingestion.CreditInput, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.WithComponent("ingestion-handler"),
	}
}

// Integrate accepts a JSON array of credits. It answers 202 when every credit
// was validated, stored and published, and 400 with the batch result
// otherwise. Malformed JSON and oversized batches are rejected before any
// credit is processed.
func (h *Handler) Integrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var items []ingestion.CreditInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&items); err != nil {
		h.fail(w, apperrors.New(apperrors.ErrDeserialization, http.StatusBadRequest, "invalid JSON body"))
		return
	}
	if err := validator.ValidateBatch(items); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.svc.IntegrateCredits(ctx, items)
	if !result.Success {
		log.Warn("credit batch rejected", "items", len(items), "message", result.Message)
		h.writeJSON(w, http.StatusBadRequest, result)
		return
	}
	log.Info("credit batch accepted", "items", len(items))
	h.writeJSON(w, http.StatusAccepted, result)
}

// ListByInvoice returns the credits of an invoice, or 404 when it has none.
func (h *Handler) ListByInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceNumber := chi.URLParam(r, "invoiceNumber")
	credits, err := h.svc.ListCreditsByInvoice(r.Context(), invoiceNumber)
	if err != nil {
		h.lookupFailed(w, r, err, "invoice_number", invoiceNumber)
		return
	}
	if len(credits) == 0 {
		h.fail(w, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "no credits found for invoice %s", invoiceNumber))
		return
	}
	h.writeJSON(w, http.StatusOK, credits)
}

// GetCredit returns one credit by its number, or 404.
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	creditNumber := chi.URLParam(r, "creditNumber")
	credit, err := h.svc.GetCredit(r.Context(), creditNumber)
	if err != nil {
		h.lookupFailed(w, r, err, "credit_number", creditNumber)
		return
	}
	h.writeJSON(w, http.StatusOK, credit)
}

func (h *Handler) lookupFailed(w http.ResponseWriter, r *http.Request, err error, key, value string) {
	status := apperrors.HTTPStatusCode(err)
	if status == http.StatusNotFound {
		h.writeError(w, status, "credit not found")
		return
	}
	logger.FromContext(r.Context()).Error("credit lookup failed",
		key, value,
		"error", err,
		"status_code", status,
	)
	h.writeError(w, status, "lookup failed")
}

// fail writes err with its mapped status. AppError messages are shown to the
// client as is.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, apperrors.HTTPStatusCode(err), message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
