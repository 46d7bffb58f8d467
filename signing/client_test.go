package signing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	var captured struct {
		TxJSON  map[string]interface{} `json:"txjson"`
		Options *struct {
			ReturnURL struct {
				Web string `json:"web"`
				App string `json:"app"`
			} `json:"return_url"`
		} `json:"options"`
	}
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payload", r.URL.Path)
		require.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		require.Equal(t, "secret-1", r.Header.Get("X-API-Secret"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"uuid": "abc-123", "next": {"always": "https://sign.example/abc-123"}}`))
	}))
	defer gateway.Close()

	client := NewClient(Config{
		BaseURL:   gateway.URL,
		APIKey:    "key-1",
		APISecret: "secret-1",
		ReturnURL: "https://app.example/done",
	})

	session, err := client.CreateSession(context.Background(), map[string]interface{}{
		"TransactionType": "Payment",
		"Destination":     "rDestination",
		"Amount":          "2000000",
	})
	require.NoError(t, err)
	require.Equal(t, "abc-123", session.SessionID)
	require.Equal(t, "https://sign.example/abc-123", session.SigningLink)

	require.Equal(t, "Payment", captured.TxJSON["TransactionType"])
	require.NotNil(t, captured.Options)
	require.Equal(t, "https://app.example/done", captured.Options.ReturnURL.Web)
}

func TestCreateSessionRejectsEmptySessionID(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"uuid": "", "next": {"always": ""}}`))
	}))
	defer gateway.Close()

	client := NewClient(Config{BaseURL: gateway.URL})
	_, err := client.CreateSession(context.Background(), map[string]interface{}{"TransactionType": "Payment"})
	require.Error(t, err)
}

func TestGetSession(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/payload/abc-123", r.URL.Path)
		w.Write([]byte(`{
			"meta": {"resolved": true, "signed": true},
			"response": {"account": "rAlice", "txid": "DEADBEEF"}
		}`))
	}))
	defer gateway.Close()

	client := NewClient(Config{BaseURL: gateway.URL})
	status, err := client.GetSession(context.Background(), "abc-123")
	require.NoError(t, err)
	require.True(t, status.Resolved)
	require.True(t, status.Signed)
	require.Equal(t, "rAlice", status.ResultAccount)
	require.Equal(t, "DEADBEEF", status.ResultTxID)

	_, err = client.GetSession(context.Background(), "  ")
	require.Error(t, err)
}

func TestGatewayErrorStatus(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer gateway.Close()

	client := NewClient(Config{BaseURL: gateway.URL})
	_, err := client.GetSession(context.Background(), "abc-123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=403")
}
