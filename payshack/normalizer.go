package payshack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// Rates resolves a conversion rate to USD for a currency. The zero
// result means no rate is known.
type Rates interface {
	RateToUSD(ctx context.Context, currency string) decimal.Decimal
}

// statusMap folds PayShack transaction statuses onto the canonical set.
// Pay-out statuses arrive uppercase; lookups are lowercased first.
var statusMap = map[string]string{
	"success":     models.TxnStatusSuccess,
	"failed":      models.TxnStatusFailed,
	"initiated":   models.TxnStatusPending,
	"pending":     models.TxnStatusPending,
	"in process":  models.TxnStatusProcessing,
	"in_process":  models.TxnStatusProcessing,
	"incomplete":  models.TxnStatusPending,
	"refunded":    models.TxnStatusRefunded,
	"cb_refunded": models.TxnStatusRefunded,
	"tampered":    models.TxnStatusFailed,
}

// clientProjectMap translates upstream merchant account names to the
// project labels the rest of the business uses. Unknown names pass
// through unchanged.
var clientProjectMap = map[string]string{
	"91G_TECH_PVT_LTD":    "91game",
	"91g_tech_pvt_ltd":    "91game",
	"IG Indigate P_Out":   "indigate_payout",
	"MNCL_M5_Pvt_Ltd":     "mncl_m5",
	"Mn CL THREE_PVT_LTD": "mncl_three",
}

// Normalizer converts raw PayShack payloads to canonical ledger rows.
// PayShack settles in INR only.
type Normalizer struct {
	rates Rates
}

func NewNormalizer(rates Rates) *Normalizer {
	return &Normalizer{rates: rates}
}

func (n *Normalizer) NormalizePayin(ctx context.Context, raw json.RawMessage) (*models.Transaction, error) {
	var payin PayinTransaction
	if err := json.Unmarshal(raw, &payin); err != nil {
		return nil, fmt.Errorf("decode payin: %w", err)
	}
	if payin.TxnId == "" {
		return nil, fmt.Errorf("payin without txnId")
	}

	amount, err := decimalFromNumber(payin.Amount)
	if err != nil {
		return nil, fmt.Errorf("payin %s amount: %w", payin.TxnId, err)
	}

	status := mapStatus(payin.TxnStatus)
	createdAt := utils.ParseTimestamp(payin.CreatedAt)
	updatedAt := utils.ParseTimestamp(payin.ModifiedAt)

	txn := &models.Transaction{
		Source:            models.SourcePayShack,
		SourceId:          payin.TxnId,
		ReferenceId:       nonEmpty(payin.SpTxnId),
		ClientOperationId: nonEmpty(payin.OrderId),
		OrderId:           nonEmpty(payin.OrderId),
		Project:           mapProject(payin.ClientName),
		MerchantId:        payin.ClientId,
		Amount:            amount,
		Currency:          "INR",
		Fee:               nullDecimalFromNumber(payin.TotalCommissionAmount),
		Status:            status,
		OriginalStatus:    payin.TxnStatus,
		UserName:          nonEmpty(payin.PayerVpa),
		Country:           nonEmpty("IN"),
		Utr:               nonEmpty(payin.Utr),
		PaymentMethod:     paymentMethodOr(payin.TransactionType, "UPI"),
		PaymentProduct:    "payin",
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
		RawData:           raw,
	}
	if status == models.TxnStatusSuccess {
		txn.CompletedAt = updatedAt
	}
	n.applyUsd(ctx, txn)
	txn.DataHash = models.ComputeDataHash(txn.Source, txn.SourceId, txn.Amount, txn.Currency, txn.CreatedAt)
	return txn, nil
}

func (n *Normalizer) NormalizePayout(ctx context.Context, raw json.RawMessage) (*models.Transaction, error) {
	var payout PayoutTransaction
	if err := json.Unmarshal(raw, &payout); err != nil {
		return nil, fmt.Errorf("decode payout: %w", err)
	}
	sourceId := payout.TxnId
	if sourceId == "" {
		sourceId = payout.TransactionId
	}
	if sourceId == "" {
		return nil, fmt.Errorf("payout without txnId")
	}

	amount, err := decimalFromNumber(payout.Amount)
	if err != nil {
		return nil, fmt.Errorf("payout %s amount: %w", sourceId, err)
	}

	originalStatus := payout.TxnStatus
	if originalStatus == "" {
		originalStatus = payout.Status
	}
	status := mapStatus(originalStatus)
	createdAt := utils.ParseTimestamp(payout.CreatedAt)
	updatedAt := utils.ParseTimestamp(payout.ModifiedAt)

	txn := &models.Transaction{
		Source:            models.SourcePayShack,
		SourceId:          sourceId,
		ClientOperationId: nonEmpty(payout.OrderId),
		OrderId:           nonEmpty(payout.OrderId),
		Project:           mapProject(payout.ClientName),
		MerchantId:        payout.ClientId,
		Amount:            amount,
		Currency:          "INR",
		Fee:               nullDecimalFromNumber(payout.TotalCommissionAmount),
		Status:            status,
		OriginalStatus:    originalStatus,
		UserEmail:         nonEmpty(payout.BeneEmail),
		UserName:          nonEmpty(payout.BeneName),
		Country:           nonEmpty("IN"),
		Utr:               nonEmpty(payout.Utr),
		PaymentMethod:     "payout",
		PaymentProduct:    "payout",
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
		RawData:           raw,
	}
	if status == models.TxnStatusSuccess {
		txn.CompletedAt = updatedAt
	}
	n.applyUsd(ctx, txn)
	txn.DataHash = models.ComputeDataHash(txn.Source, txn.SourceId, txn.Amount, txn.Currency, txn.CreatedAt)
	return txn, nil
}

func (n *Normalizer) applyUsd(ctx context.Context, txn *models.Transaction) {
	if n.rates == nil {
		return
	}
	rate := n.rates.RateToUSD(ctx, txn.Currency)
	if rate.IsZero() {
		return
	}
	txn.ExchangeRate = decimal.NewNullDecimal(rate)
	txn.AmountUsd = decimal.NewNullDecimal(txn.Amount.Mul(rate).Round(4))
	if txn.Fee.Valid {
		txn.FeeUsd = decimal.NewNullDecimal(txn.Fee.Decimal.Mul(rate).Round(4))
	}
}

func mapStatus(original string) string {
	if mapped, ok := statusMap[strings.ToLower(strings.TrimSpace(original))]; ok {
		return mapped
	}
	return models.TxnStatusPending
}

func mapProject(clientName string) string {
	if project, ok := clientProjectMap[clientName]; ok {
		return project
	}
	return clientName
}

func decimalFromNumber(num json.Number) (decimal.Decimal, error) {
	if num == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(num.String())
}

func nullDecimalFromNumber(num json.Number) decimal.NullDecimal {
	if num == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func nonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func paymentMethodOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
