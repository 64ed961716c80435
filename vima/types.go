package vima

import "encoding/json"

// Operation is one row from the collector operation feed. Much of the
// payload is nested inside the original create request the merchant
// sent, so the useful fields sit several levels deep.
type Operation struct {
	OperationId       string      `json:"operation_id"`
	OperationCreateId json.Number `json:"operation_create_id"`
	OperationUpdateId json.Number `json:"operation_update_id"`
	ClientOperationId string      `json:"client_operation_id"`
	ReferenceId       string      `json:"reference_id"`
	Project           string      `json:"project"`
	CredentialsOwner  string      `json:"credentials_owner"`

	PaymentStatus     string `json:"payment_status"`
	CurrentStatus     string `json:"current_status"`
	PaymentMethodCode string `json:"payment_method_code"`
	PaymentProduct    string `json:"payment_product"`

	// CompleteAmount is in major units and only present once the
	// operation finished.
	CompleteAmount   *json.Number `json:"complete_amount"`
	CompleteCurrency string       `json:"complete_currency"`

	UserId  string `json:"user_id"`
	Contact string `json:"contact"`

	OperationCreatedAt  string `json:"operation_created_at"`
	OperationModifiedAt string `json:"operation_modified_at"`
	CompleteCreatedAt   string `json:"complete_created_at"`

	CreateParams CreateParams `json:"create_params"`
	CardFinish   []CardFinish `json:"card_finish"`
}

type CreateParams struct {
	Params struct {
		Payment Payment `json:"payment"`
	} `json:"params"`
}

type Payment struct {
	Payer struct {
		Email  string `json:"email"`
		Phone  string `json:"phone"`
		Person struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"person"`
		CustomerAccount struct {
			Id string `json:"id"`
		} `json:"customer_account"`
	} `json:"payer"`

	// Amount here is in minor units (cents/paise).
	Amount struct {
		Value    json.Number `json:"value"`
		Currency string      `json:"currency"`
	} `json:"amount"`

	Client struct {
		Country string `json:"country"`
	} `json:"client"`

	Identifiers struct {
		CId json.RawMessage `json:"c_id"`
	} `json:"identifiers"`
}

type CardFinish struct {
	ChargedFee *json.Number `json:"charged_fee"`
}

// wrappedResponse covers deployments that wrap the list instead of
// returning a bare array.
type wrappedResponse struct {
	Operations []json.RawMessage `json:"operations"`
}
