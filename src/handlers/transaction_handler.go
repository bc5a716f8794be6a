package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/model"
	"github.com/username/ahorrito/src/models"
	"github.com/username/ahorrito/src/services"
	"github.com/username/ahorrito/src/utils"
)

type TransactionHandler struct {
	service services.TransactionService
}

func NewTransactionHandler(service services.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// sendServiceError maps expected business failures to 400 and anything
// unexpected (storage unavailable) to 500.
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrParseFailed),
		errors.Is(err, services.ErrInsufficientSavings),
		errors.Is(err, services.ErrNotPending),
		errors.Is(err, model.ErrUserNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		utils.SendJSONError(w, "internal error processing transaction", http.StatusInternalServerError)
	}
}

// HandleCreateTransaction handles POST /api/transactions. EXPENSE
// transactions run the full calculator/policy pipeline.
func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID          int64                  `json:"userId"`
		Amount          decimal.Decimal        `json:"amount"`
		Description     string                 `json:"description"`
		MerchantName    string                 `json:"merchantName"`
		TransactionType models.TransactionType `json:"transactionType"`
		TransactionDate *time.Time             `json:"transactionDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.CreateTransaction(services.CreateTransactionRequest{
		UserID:          body.UserID,
		Amount:          body.Amount,
		Description:     body.Description,
		MerchantName:    body.MerchantName,
		TransactionType: body.TransactionType,
		TransactionDate: body.TransactionDate,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, tx, http.StatusCreated)
}

// HandleFromNotification handles POST /api/transactions/from-notification:
// a client-side parsed notification, tagged with provenance. The type
// defaults to EXPENSE when the client omits it.
func (h *TransactionHandler) HandleFromNotification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID             int64                  `json:"userId"`
		Amount             decimal.Decimal        `json:"amount"`
		Description        string                 `json:"description"`
		MerchantName       string                 `json:"merchantName"`
		TransactionType    models.TransactionType `json:"transactionType"`
		NotificationSource string                 `json:"notificationSource"`
		BankReference      string                 `json:"bankReference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.TransactionType == "" {
		body.TransactionType = models.TypeExpense
	}

	tx, err := h.service.CreateTransaction(services.CreateTransactionRequest{
		UserID:             body.UserID,
		Amount:             body.Amount,
		Description:        body.Description,
		MerchantName:       body.MerchantName,
		TransactionType:    body.TransactionType,
		NotificationSource: body.NotificationSource,
		BankReference:      body.BankReference,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, tx, http.StatusCreated)
}

// HandleParseNotification handles POST /api/transactions/parse-notification:
// raw notification text parsed server-side, then fed through the same
// pipeline as explicit submissions.
func (h *TransactionHandler) HandleParseNotification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   int64  `json:"userId"`
		RawText  string `json:"rawText"`
		BankName string `json:"bankName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, parseResult, err := h.service.IngestRawNotification(body.UserID, body.RawText, body.BankName)
	if err != nil {
		if errors.Is(err, services.ErrParseFailed) {
			utils.SendJSON(w, map[string]interface{}{
				"error":        err.Error(),
				"parse_result": parseResult,
			}, http.StatusBadRequest)
			return
		}
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]interface{}{
		"transaction":  tx,
		"parse_result": parseResult,
	}, http.StatusCreated)
}

// HandleSavingDeposit handles POST /api/transactions/saving-deposit:
// a manual increment of the savings total, no computed saving.
func (h *TransactionHandler) HandleSavingDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleManualAdjustment(w, r, h.service.SavingDeposit)
}

// HandleWithdraw handles POST /api/transactions/withdraw: fails with
// 400 when the amount exceeds the accumulated savings total.
func (h *TransactionHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleManualAdjustment(w, r, h.service.Withdraw)
}

func (h *TransactionHandler) handleManualAdjustment(
	w http.ResponseWriter, r *http.Request,
	apply func(int64, decimal.Decimal, string) (*models.Transaction, error),
) {
	var body struct {
		UserID      int64           `json:"userId"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := apply(body.UserID, body.Amount, body.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, tx, http.StatusCreated)
}

// HandleProcessPending handles POST /api/transactions/process-pending/{userId}.
func (h *TransactionHandler) HandleProcessPending(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || userID <= 0 {
		utils.SendJSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	report, err := h.service.ProcessPendingForUser(userID)
	if err != nil {
		utils.SendJSONError(w, "pending sweep failed", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, report, http.StatusOK)
}

// HandleListTransactions handles GET /api/transactions/{userId}.
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || userID <= 0 {
		utils.SendJSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	transactions, err := h.service.ListTransactions(userID)
	if err != nil {
		utils.SendJSONError(w, "error listing transactions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

// HandleCancelTransaction handles POST /api/transactions/{id}/cancel,
// the only path into the CANCELLED state. Only PENDING rows qualify.
func (h *TransactionHandler) HandleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || transactionID <= 0 {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	var body struct {
		UserID int64 `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.CancelTransaction(body.UserID, transactionID); err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]string{"status": string(models.StatusCancelled)}, http.StatusOK)
}
