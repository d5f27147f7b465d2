package products

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/comercia-app/comercia/internal/platform/httpx"
	"github.com/comercia-app/comercia/internal/shared"
)

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

type createProductRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	Code      string `json:"code" validate:"required,max=40"`
	Name      string `json:"name" validate:"required,max=200"`
	Price     string `json:"price" validate:"required"`
	Stock     int64  `json:"stock" validate:"gte=0"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, total, err := h.service.List(r.Context(), ListFilters{
		CompanyID: companyID,
		Search:    r.URL.Query().Get("q"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get product failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "price must be a decimal number")
		return
	}

	product, err := h.service.Create(r.Context(), Product{
		CompanyID: req.CompanyID,
		Code:      req.Code,
		Name:      req.Name,
		Price:     price,
		Stock:     req.Stock,
	})
	if err != nil {
		h.logger.Error("create product failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

type adjustStockRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

// AdjustStock applies a signed stock delta; decrements below zero are
// rejected.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.AdjustStock(r.Context(), id, req.Delta); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrStockDepleted):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violated", err.Error())
		default:
			h.logger.Error("adjust stock failed", slog.Int64("product_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/{id}", h.Show)
	r.Post("/products", h.Create)
	r.Post("/products/{id}/stock", h.AdjustStock)
}
