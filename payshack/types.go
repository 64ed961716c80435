package payshack

import "encoding/json"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Token        string `json:"token"`
		ClientId     string `json:"clientId"`
		RefreshToken string `json:"refreshToken"`
		Role         string `json:"role"`
	} `json:"data"`
}

type listResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Transactions []json.RawMessage `json:"transactions"`
		TotalPages   int               `json:"totalPages"`
		TotalRecords int               `json:"totalRecords"`
	} `json:"data"`
}

// PayinTransaction is one row from the pay-in fetch endpoint.
type PayinTransaction struct {
	TxnId                 string      `json:"txnId"`
	OrderId               string      `json:"orderId"`
	SpTxnId               string      `json:"spTxnId"`
	ClientId              string      `json:"clientId"`
	ClientName            string      `json:"clientName"`
	Amount                json.Number `json:"amount"`
	PaidAmount            json.Number `json:"paidAmount"`
	TotalCommissionAmount json.Number `json:"totalCommissionAmount"`
	TxnStatus             string      `json:"txnStatus"`
	PayerVpa              string      `json:"payerVpa"`
	Utr                   string      `json:"utr"`
	TransactionType       string      `json:"transactionType"`
	CreatedAt             string      `json:"createdAt"`
	ModifiedAt            string      `json:"modifiedAt"`
}

// PayoutTransaction is one row from the wallet transactions endpoint.
// Statuses come back uppercase here (SUCCESS, FAILED).
type PayoutTransaction struct {
	TxnId                 string      `json:"txnId"`
	TransactionId         string      `json:"transactionId"`
	OrderId               string      `json:"orderId"`
	ClientId              string      `json:"clientId"`
	ClientName            string      `json:"clientName"`
	Amount                json.Number `json:"amount"`
	TotalCommissionAmount json.Number `json:"totalCommissionAmount"`
	TxnStatus             string      `json:"txnStatus"`
	Status                string      `json:"status"`
	BeneName              string      `json:"beneName"`
	BeneEmail             string      `json:"beneEmail"`
	BeneAccount           string      `json:"beneAccount"`
	Utr                   string      `json:"utr"`
	CreatedAt             string      `json:"createdAt"`
	ModifiedAt            string      `json:"modifiedAt"`
}
