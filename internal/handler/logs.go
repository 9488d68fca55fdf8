package handler

import (
	"net/http"
	"strconv"
	"strings"

	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/response"
)

// LogHandler serves the audit trail of quantity changes.
type LogHandler struct {
	ledger *service.LedgerService
}

func NewLogHandler(ledger *service.LedgerService) *LogHandler {
	return &LogHandler{ledger: ledger}
}

// GetHistory returns paginated audit entries for a product, newest first.
// GET /api/v1/inventory/{product_id}/history?kind=&page=&limit=
func (h *LogHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	kind := model.AuditKind(strings.ToUpper(q.Get("kind")))

	entries, total, err := h.ledger.History(r.Context(), productID, kind, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, entries, page, limit, total)
}
