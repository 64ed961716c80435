package vima

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// statusMap folds collector operation statuses onto the canonical set.
// in_process stays pending here: the collector flips it within minutes
// and intermediate states never reconcile.
var statusMap = map[string]string{
	"success":             models.TxnStatusSuccess,
	"fail":                models.TxnStatusFailed,
	"failed":              models.TxnStatusFailed,
	"in_process":          models.TxnStatusPending,
	"in process":          models.TxnStatusPending,
	"user_input_required": models.TxnStatusPending,
	"pending":             models.TxnStatusPending,
}

// Normalize converts one raw collector operation to a canonical ledger
// row. Amount precedence: complete_amount is authoritative and already
// in major units; the amount from the original create request is in
// minor units and divided by 100.
func Normalize(_ context.Context, raw json.RawMessage) (*models.Transaction, error) {
	var op Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	if op.OperationId == "" {
		return nil, fmt.Errorf("operation without operation_id")
	}

	payment := op.CreateParams.Params.Payment

	var amount decimal.Decimal
	if op.CompleteAmount != nil {
		var err error
		amount, err = decimal.NewFromString(op.CompleteAmount.String())
		if err != nil {
			return nil, fmt.Errorf("operation %s complete_amount: %w", op.OperationId, err)
		}
	} else if payment.Amount.Value != "" {
		minor, err := decimal.NewFromString(payment.Amount.Value.String())
		if err != nil {
			return nil, fmt.Errorf("operation %s amount value: %w", op.OperationId, err)
		}
		amount = minor.Div(decimal.NewFromInt(100))
	}

	currency := op.CompleteCurrency
	if currency == "" {
		currency = payment.Amount.Currency
	}
	if currency == "" {
		currency = "INR"
	}

	originalStatus := op.PaymentStatus
	if originalStatus == "" {
		originalStatus = op.CurrentStatus
	}
	status := models.TxnStatusPending
	if mapped, ok := statusMap[strings.ToLower(strings.TrimSpace(originalStatus))]; ok {
		status = mapped
	}

	userName := strings.TrimSpace(payment.Payer.Person.FirstName + " " + payment.Payer.Person.LastName)

	clientOpId := op.ClientOperationId
	if clientOpId == "" {
		clientOpId = rawToString(payment.Identifiers.CId)
	}

	userId := op.UserId
	if userId == "" {
		userId = payment.Payer.CustomerAccount.Id
	}
	userEmail := payment.Payer.Email
	if userEmail == "" {
		userEmail = op.Contact
	}

	txn := &models.Transaction{
		Source:             models.SourceVima,
		SourceId:           op.OperationId,
		ReferenceId:        nonEmpty(op.ReferenceId),
		ClientOperationId:  nonEmpty(clientOpId),
		Project:            op.Project,
		MerchantId:         op.CredentialsOwner,
		Amount:             amount,
		Currency:           currency,
		Fee:                extractFee(op.CardFinish),
		Status:             status,
		OriginalStatus:     originalStatus,
		UserId:             nonEmpty(userId),
		UserEmail:          nonEmpty(userEmail),
		UserPhone:          nonEmpty(payment.Payer.Phone),
		UserName:           nonEmpty(userName),
		Country:            nonEmpty(payment.Client.Country),
		PaymentMethod:      op.PaymentMethodCode,
		PaymentProduct:     op.PaymentProduct,
		CreatedAt:          utils.ParseTimestamp(op.OperationCreatedAt),
		UpdatedAt:          utils.ParseTimestamp(op.OperationModifiedAt),
		CompletedAt:        utils.ParseTimestamp(op.CompleteCreatedAt),
		SourceCreateCursor: nonEmpty(op.OperationCreateId.String()),
		SourceUpdateCursor: nonEmpty(op.OperationUpdateId.String()),
		RawData:            raw,
	}
	txn.DataHash = models.ComputeDataHash(txn.Source, txn.SourceId, txn.Amount, txn.Currency, txn.CreatedAt)
	return txn, nil
}

func extractFee(finishes []CardFinish) decimal.NullDecimal {
	if len(finishes) == 0 || finishes[0].ChargedFee == nil {
		return decimal.NullDecimal{}
	}
	fee, err := decimal.NewFromString(finishes[0].ChargedFee.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(fee)
}

// rawToString renders an identifier that may arrive as either a JSON
// string or a number.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

func nonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
