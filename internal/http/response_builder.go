package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"gofinances/internal/core"
	"gofinances/internal/ledger"
	"gofinances/internal/log"
	"gofinances/internal/services"
)

// Result statuses of an imported row.
const (
	rowAccepted = "accepted"
	rowRejected = "rejected"
	rowFailed   = "failed"
)

type (
	categoryResponse struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	transactionResponse struct {
		ID         string            `json:"id"`
		Title      string            `json:"title"`
		Value      json.Number       `json:"value"`
		Type       string            `json:"type"`
		CategoryID string            `json:"category_id"`
		Category   *categoryResponse `json:"category,omitempty"`
		CreatedAt  time.Time         `json:"created_at"`
		UpdatedAt  time.Time         `json:"updated_at"`
	}

	balanceResponse struct {
		Income  json.Number `json:"income"`
		Outcome json.Number `json:"outcome"`
		Total   json.Number `json:"total"`
	}

	listResponse struct {
		Transactions []transactionResponse `json:"transactions"`
		Balance      balanceResponse       `json:"balance"`
	}

	rowResponse struct {
		Row         int                  `json:"row"`
		Status      string               `json:"status"`
		Transaction *transactionResponse `json:"transaction,omitempty"`
		Reason      string               `json:"reason,omitempty"`
		Message     string               `json:"message,omitempty"`
	}

	importResponse struct {
		Results  []rowResponse   `json:"results"`
		Accepted int             `json:"accepted"`
		Rejected int             `json:"rejected"`
		Balance  balanceResponse `json:"balance"`
	}

	errorResponse struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason,omitempty"`
	}

	// importErrorResponse reports an aborted import together with the rows
	// handled before it stopped.
	importErrorResponse struct {
		errorResponse
		importResponse
	}
)

// amount renders a decimal as a bare JSON number.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:         t.ID,
		Title:      t.Title,
		Value:      amount(t.Value),
		Type:       t.Type.String(),
		CategoryID: t.CategoryID,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
	if t.Category != nil {
		resp.Category = &categoryResponse{
			ID:        t.Category.ID,
			Title:     t.Category.Title,
			CreatedAt: t.Category.CreatedAt,
			UpdatedAt: t.Category.UpdatedAt,
		}
	}
	return resp
}

func newBalanceResponse(b core.Balance) balanceResponse {
	return balanceResponse{
		Income:  amount(b.Income),
		Outcome: amount(b.Outcome),
		Total:   amount(b.Total),
	}
}

func newListResponse(ts []core.Transaction, b core.Balance) listResponse {
	resp := listResponse{
		Transactions: make([]transactionResponse, len(ts)),
		Balance:      newBalanceResponse(b),
	}
	for i, t := range ts {
		resp.Transactions[i] = newTransactionResponse(t)
	}
	return resp
}

// newImportResponse reports each row under its line in the uploaded file.
func newImportResponse(report services.ImportReport) importResponse {
	resp := importResponse{
		Results:  make([]rowResponse, len(report.Results)),
		Accepted: report.Accepted,
		Rejected: report.Rejected,
		Balance:  newBalanceResponse(report.Balance),
	}
	for i, res := range report.Results {
		resp.Results[i] = newRowResponse(res, lineOf(report.Rows, res.Row))
	}
	return resp
}

func lineOf(rows []ledger.Row, i int) int {
	if i >= 0 && i < len(rows) && rows[i].Line > 0 {
		return rows[i].Line
	}
	return i + 1
}

func newRowResponse(res ledger.Result, line int) rowResponse {
	row := rowResponse{Row: line}
	switch {
	case res.Accepted():
		t := newTransactionResponse(*res.Transaction)
		row.Status = rowAccepted
		row.Transaction = &t
	case res.Rejected():
		row.Status = rowRejected
		row.Reason = string(core.ReasonOf(res.Err))
		row.Message = res.Err.Error()
	default:
		row.Status = rowFailed
		row.Message = "Transaction could not be stored."
	}
	return row
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write response", log.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message, reason string) {
	writeJSON(w, r, status, newErrorResponse(message, reason))
}

// writeServiceError maps an error from the service onto a status code and
// an error body. Store failures are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := serviceError(r, err)
	writeJSON(w, r, status, body)
}

// writeImportError is writeServiceError for an aborted import; the body also
// carries the partial report so clients can see which rows were stored.
func writeImportError(w http.ResponseWriter, r *http.Request, err error, report services.ImportReport) {
	status, body := serviceError(r, err)
	writeJSON(w, r, status, importErrorResponse{
		errorResponse:  body,
		importResponse: newImportResponse(report),
	})
}

func serviceError(r *http.Request, err error) (int, errorResponse) {
	var rejection *core.RejectionError
	switch {
	case errors.As(err, &rejection):
		status := http.StatusBadRequest
		if rejection.Reason == core.InsufficientFunds {
			status = http.StatusConflict
		}
		return status, newErrorResponse(rejection.Message, string(rejection.Reason))
	case errors.Is(err, services.ErrInvalidID):
		return http.StatusBadRequest, newErrorResponse("Invalid ID.", "")
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, newErrorResponse("No such ID.", "")
	case errors.Is(err, core.ErrLedgerConflict):
		return http.StatusConflict, newErrorResponse("The ledger changed while the request was processed.", string(core.InsufficientFunds))
	}
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.NewFields().WithError(err).ToSlice()...)
	return http.StatusInternalServerError, newErrorResponse("Internal server error.", "")
}

func newErrorResponse(message, reason string) errorResponse {
	return errorResponse{Status: "error", Message: message, Reason: reason}
}
