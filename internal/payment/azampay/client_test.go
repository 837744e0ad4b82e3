package azampay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safaricrafts/order-core/internal/payment"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		AuthURL:      srv.URL,
		CheckoutURL:  srv.URL,
		AppName:      "safaricrafts",
		ClientID:     "client",
		ClientSecret: "secret",
	})
}

func TestCheckout(t *testing.T) {
	var tokenCalls, checkoutCalls int

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/AppRegistration/GenerateToken":
			tokenCalls++
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "safaricrafts", body["appName"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"accessToken": "tok-1"},
			})
		case "/azampay/mno/checkout":
			checkoutCalls++
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "255712000000", body["accountNumber"])
			assert.Equal(t, "50000", body["amount"])
			assert.Equal(t, "pay-1", body["externalId"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success":       true,
				"transactionId": "AZ999",
				"message":       "accepted",
			})
		default:
			http.NotFound(w, r)
		}
	})

	resp, err := c.Checkout(context.Background(), payment.CheckoutRequest{
		AccountNumber: "255712000000",
		Amount:        50000,
		Currency:      "TZS",
		ExternalID:    "pay-1",
		Provider:      "Mpesa",
	})
	require.NoError(t, err)
	assert.Equal(t, "AZ999", resp.TransactionID)

	// second checkout reuses the cached token
	_, err = c.Checkout(context.Background(), payment.CheckoutRequest{
		AccountNumber: "255712000000",
		Amount:        50000,
		Currency:      "TZS",
		ExternalID:    "pay-1",
		Provider:      "Mpesa",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, 2, checkoutCalls)
}

func TestCheckoutRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/AppRegistration/GenerateToken" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"accessToken": "tok"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "insufficient balance"})
	})

	_, err := c.Checkout(context.Background(), payment.CheckoutRequest{ExternalID: "p"})
	assert.ErrorContains(t, err, "insufficient balance")
}

func TestAuthFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Checkout(context.Background(), payment.CheckoutRequest{ExternalID: "p"})
	assert.ErrorContains(t, err, "azampay auth")
}
