package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEvents(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/events", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{
			"resource_type": r.URL.Query().Get("resource_type"),
			"since":         r.URL.Query().Get("since"),
			"limit":         r.URL.Query().Get("limit"),
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{
					"id":           "evt-1",
					"type":         "transfer_updated",
					"resourceId":   "transfer-123",
					"resourceType": "transfer",
					"payload":      map[string]any{"status": "completed", "amount": 100.5},
					"timestamp":    "2026-07-01T12:00:00Z",
				},
			},
		})
	}))
	defer server.Close()

	source := NewHTTPSource(Config{BaseURL: server.URL, ApiKey: "secret", PageLimit: 100})

	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	events, err := source.GetEvents(context.Background(), Filter{
		ResourceType: "transfer",
		Since:        since,
		Limit:        50,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "transfer", gotQuery["resource_type"])
	assert.Equal(t, "2026-07-01T00:00:00Z", gotQuery["since"])
	assert.Equal(t, "50", gotQuery["limit"])

	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "transfer-123", events[0].ResourceID)
	assert.Equal(t, "completed", events[0].Payload.Status)
}

func TestGetEventsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewHTTPSource(Config{BaseURL: server.URL})

	_, err := source.GetEvents(context.Background(), Filter{ResourceType: "transfer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestEmitEvent(t *testing.T) {
	var got Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	source := NewHTTPSource(Config{BaseURL: server.URL})

	err := source.EmitEvent(context.Background(), Event{
		ID:           "evt-9",
		Type:         "transfer_reconciled",
		ResourceID:   "transfer-123",
		ResourceType: "transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "transfer_reconciled", got.Type)
	assert.Equal(t, "transfer-123", got.ResourceID)
}

func TestEmitEventRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad event", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	source := NewHTTPSource(Config{BaseURL: server.URL})

	err := source.EmitEvent(context.Background(), Event{ID: "evt-9"})
	assert.Error(t, err)
}
