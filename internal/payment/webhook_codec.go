package payment

import (
	"encoding/json"
	"fmt"
)

// webhookBody matches the AzamPay callback shape. Providers are loose with
// types: amount arrives as a number or a numeric string, and the status key
// is sometimes "transactionStatus".
type webhookBody struct {
	TransactionID     string `json:"transactionId"`
	ExternalID        string `json:"externalId"`
	Status            string `json:"status"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            any    `json:"amount"`
	Message           string `json:"message"`
	ErrorCode         string `json:"errorCode"`
}

// DecodeWebhookBody parses a raw provider callback into a WebhookInput.
// A body that is not valid JSON is a malformed-payload error; missing
// correlation fields are left for the caller to reject.
func DecodeWebhookBody(raw []byte) (WebhookInput, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return WebhookInput{}, fmt.Errorf("decode webhook body: %w", err)
	}

	status := body.Status
	if status == "" {
		status = body.TransactionStatus
	}

	var amount int64
	switch v := body.Amount.(type) {
	case float64:
		amount = int64(v)
	case string:
		// Tolerate "50000" and "50000.00" style strings.
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			amount = int64(f)
		}
	}

	return WebhookInput{
		TransactionID: body.TransactionID,
		ExternalID:    body.ExternalID,
		Status:        status,
		Amount:        amount,
		Message:       body.Message,
		ErrorCode:     body.ErrorCode,
		Raw:           json.RawMessage(raw),
	}, nil
}

func decodeWebhookBody(raw json.RawMessage) (WebhookInput, error) {
	return DecodeWebhookBody(raw)
}
