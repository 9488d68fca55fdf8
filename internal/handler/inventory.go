package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
	"stockledger-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// InventoryHandler handles inventory-related HTTP requests.
type InventoryHandler struct {
	ledger   *service.LedgerService
	validate *validator.Validate
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(ledger *service.LedgerService) *InventoryHandler {
	return &InventoryHandler{
		ledger:   ledger,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// setQuantityRequest is the PATCH body: {"data":{"type":"inventory","attributes":{"quantity":N}}}.
type setQuantityRequest struct {
	Data struct {
		Type       string `json:"type" validate:"required,eq=inventory"`
		Attributes struct {
			Quantity *int64 `json:"quantity" validate:"required,gte=0"`
		} `json:"attributes"`
	} `json:"data"`
}

// adjustRequest holds the query parameters of increase and decrease.
type adjustRequest struct {
	Quantity  int64  `query:"quantity" validate:"gt=0"`
	UnitPrice string `query:"unit_price" validate:"omitempty,numeric"`
}

// GetInventory handles GET /api/v1/inventory/{product_id}
func (h *InventoryHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	inv, err := h.ledger.Query(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, fromInventory(inv))
}

// SetQuantity handles PATCH /api/v1/inventory/{product_id}
func (h *InventoryHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req setQuantityRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, validationError(err))
		return
	}

	inv, err := h.ledger.SetQuantity(r.Context(), productID, *req.Data.Attributes.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, fromInventory(inv))
}

// Increase handles POST /api/v1/inventory/{product_id}/increase?quantity=N&unit_price=D
func (h *InventoryHandler) Increase(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.Increase)
}

// Decrease handles POST /api/v1/inventory/{product_id}/decrease?quantity=N&unit_price=D
func (h *InventoryHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.Decrease)
}

type adjustFunc func(ctx context.Context, productID, amount int64, unitPrice *decimal.Decimal) (*service.Inventory, error)

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request, apply adjustFunc) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	quantity, err := strconv.ParseInt(q.Get("quantity"), 10, 64)
	if err != nil {
		response.Error(w, apierror.ValidationError("quantity must be an integer",
			apierror.FieldError{Field: "quantity", Message: "must be a positive integer"}))
		return
	}
	req := adjustRequest{Quantity: quantity, UnitPrice: strings.TrimSpace(q.Get("unit_price"))}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, validationError(err))
		return
	}

	var unitPrice *decimal.Decimal
	if req.UnitPrice != "" {
		d, err := decimal.NewFromString(req.UnitPrice)
		if err != nil {
			response.Error(w, apierror.ValidationError("unit_price must be a decimal",
				apierror.FieldError{Field: "unit_price", Message: "must be a decimal"}))
			return
		}
		unitPrice = &d
	}

	inv, err := apply(r.Context(), productID, req.Quantity, unitPrice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, fromInventory(inv))
}

// LowStock handles GET /api/v1/inventory/low-stock?threshold=N
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := h.ledger.LowStockThreshold()
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || t < 0 {
			response.Error(w, apierror.ValidationError("threshold must be a non-negative integer",
				apierror.FieldError{Field: "threshold", Message: "must be a non-negative integer"}))
			return
		}
		threshold = t
	}

	items, err := h.ledger.LowStock(r.Context(), threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, fromInventories(items))
}

// OutOfStock handles GET /api/v1/inventory/out-of-stock
func (h *InventoryHandler) OutOfStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.OutOfStock(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, fromInventories(items))
}

// Stats handles GET /api/v1/inventory/stats
func (h *InventoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, stats)
}

// productIDParam parses {product_id}, writing a 400 when it is not a positive integer.
func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "product_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, apierror.ValidationError("product_id must be a positive integer",
			apierror.FieldError{Field: "product_id", Message: "must be a positive integer"}))
		return 0, false
	}
	return id, true
}

func validationError(err error) *apierror.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierror.BadRequest(err.Error())
	}
	details := make([]apierror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, apierror.FieldError{
			Field:   fe.Namespace(),
			Message: fieldMessage(fe),
		})
	}
	return apierror.ValidationError("request validation failed", details...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "eq":
		return "must be " + fe.Param()
	case "numeric":
		return "must be numeric"
	}
	return "is invalid (" + fe.Tag() + ")"
}
