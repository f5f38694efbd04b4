package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Options{
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000, // Don't throttle tests
		Burst:             1000,
		Tokens:            StaticToken("test-token"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestGetManifest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sync/manifest", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"library_id":"lib-1","checkpoint":"cp-9","counts":{"books":42}}`))
	}))

	manifest, err := client.GetManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lib-1", manifest.LibraryID)
	assert.Equal(t, "cp-9", manifest.Checkpoint)
	assert.Equal(t, 42, manifest.Counts.Books)
}

func TestListBooks_Params(t *testing.T) {
	after := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "cur-2", q.Get("cursor"))
		assert.Equal(t, "2026-03-01T12:00:00Z", q.Get("updated_after"))
		w.Write([]byte(`{"books":[{"id":"b1","title":"One"}],"deleted_book_ids":["b9"],"next_cursor":"cur-3","has_more":true}`))
	}))

	page, err := client.ListBooks(context.Background(), ListParams{Limit: 100, Cursor: "cur-2", UpdatedAfter: &after})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "b1", page.Items[0].ID)
	assert.Equal(t, []string{"b9"}, page.DeletedIDs)
	assert.Equal(t, "cur-3", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   errors.Code
	}{
		{"unauthorized", http.StatusUnauthorized, errors.CodeUnauthorized},
		{"not found", http.StatusNotFound, errors.CodeNotFound},
		{"conflict", http.StatusConflict, errors.CodeConflict},
		{"rate limited", http.StatusTooManyRequests, errors.CodeRateLimited},
		{"server error", http.StatusInternalServerError, errors.CodeServer},
		{"bad request", http.StatusBadRequest, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := client.GetManifest(context.Background())
			require.Error(t, err)

			var domainErr *errors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.code, domainErr.Code)
		})
	}
}

func TestTransportErrorIsNetwork(t *testing.T) {
	client, err := New(Options{
		BaseURL:           "http://127.0.0.1:1", // Nothing listens here
		RequestsPerSecond: 1000,
		Burst:             1000,
		Timeout:           200 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetManifest(context.Background())
	require.Error(t, err)

	var domainErr *errors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, errors.CodeNetwork, domainErr.Code)
	assert.True(t, domainErr.Retryable())
}

func TestSubmitListeningEvents_PartialAck(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"acknowledged":["evt-1","evt-2"],"failed":["evt-3"]}`))
	}))

	ack, err := client.SubmitListeningEvents(context.Background(), []*domain.ListeningEvent{
		{ID: "evt-1"}, {ID: "evt-2"}, {ID: "evt-3"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-1", "evt-2"}, ack.Acknowledged)
	assert.Equal(t, []string{"evt-3"}, ack.Failed)
}

func TestCircuitBreakerIgnoresBusinessRejections(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	// Well past the consecutive-failure threshold; validation rejections
	// must not open the breaker.
	for range 10 {
		_, err := client.GetManifest(context.Background())
		var domainErr *errors.Error
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, errors.CodeValidation, domainErr.Code)
	}
}
