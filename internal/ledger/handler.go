package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/comercia-app/comercia/internal/platform/httpx"
	"github.com/comercia-app/comercia/internal/shared"
)

type applyPaymentRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	Amount     string  `json:"amount" validate:"required"`
	OrderID    *int64  `json:"order_id,omitempty" validate:"omitempty,gt=0"`
	Method     string  `json:"method,omitempty" validate:"omitempty,max=64"`
	Note       string  `json:"note,omitempty" validate:"omitempty,max=500"`
	Evidence   *string `json:"evidence,omitempty"`
	PaidAt     string  `json:"paid_at,omitempty"`
}

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, err = time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paid_at must be RFC3339")
			return
		}
	}

	payment, err := h.service.ApplyPayment(r.Context(), ApplyPaymentInput{
		CustomerID: req.CustomerID,
		Amount:     amount,
		OrderID:    req.OrderID,
		Method:     req.Method,
		Note:       req.Note,
		Evidence:   req.Evidence,
		PaidAt:     paidAt,
		ActorID:    shared.UserIDFromContext(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrAmountExceedsDebt),
			errors.Is(err, ErrAmountExceedsOrderBalance),
			errors.Is(err, ErrOrderCustomerMismatch):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violated", err.Error())
		default:
			h.logger.Error("apply payment failed",
				slog.Int64("customer_id", req.CustomerID),
				slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	customerID, _ := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
	if customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	payments, err := h.service.ListPayments(r.Context(), customerID, limit, offset)
	if err != nil {
		h.logger.Error("list payments failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments})
}
