package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAirtableClient(t *testing.T, handler http.HandlerFunc) *AirtableClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAirtableClient(&AirtableConfig{
		APIKey:  "test-key",
		BaseID:  "appTEST",
		BaseURL: srv.URL,
	}, testLogger())
}

func makeRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{Fields: Fields{"Order Number": i}}
	}
	return records
}

func TestCreateBatch(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	client := newTestAirtableClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")

		var req recordsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for i := range req.Records {
			req.Records[i].ID = "rec" + string(rune('A'+i))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"records": req.Records})
	})

	result, cerr := client.CreateBatch(context.Background(), "ORDER TRACKING", makeRecords(3))
	require.Nil(t, cerr)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer test-key", gotAuth)
	// Table names with spaces must be path-escaped.
	assert.True(t, strings.HasSuffix(gotPath, "/ORDER%20TRACKING"), "path %q", gotPath)
	require.Len(t, result.Records, 3)
	assert.Equal(t, "recA", result.Records[0].ID)
}

func TestUpsertBatchUsesPatch(t *testing.T) {
	var gotMethod string
	client := newTestAirtableClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"records": []interface{}{}})
	})

	_, cerr := client.UpsertBatch(context.Background(), "Orders", makeRecords(2))
	require.Nil(t, cerr)
	assert.Equal(t, http.MethodPatch, gotMethod)
}

func TestBatchCeilingRejected(t *testing.T) {
	called := false
	client := newTestAirtableClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, cerr := client.CreateBatch(context.Background(), "Orders", makeRecords(11))
	require.NotNil(t, cerr)
	assert.Equal(t, ErrInvalidRequest, cerr.Type)
	assert.False(t, called, "oversized batch must be rejected before any request")

	_, cerr = client.UpsertBatch(context.Background(), "Orders", makeRecords(11))
	require.NotNil(t, cerr)
	assert.Equal(t, ErrInvalidRequest, cerr.Type)
	assert.False(t, called)
}

func TestBatchStatusMapping(t *testing.T) {
	testCases := []struct {
		status int
		want   ErrorType
	}{
		{402, ErrPaymentRequired},
		{413, ErrEntityTooLarge},
		{422, ErrInvalidRequest},
		{429, ErrRateLimitExceeded},
		{503, ErrServiceUnavailable},
	}

	for _, tc := range testCases {
		client := newTestAirtableClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, cerr := client.CreateBatch(context.Background(), "Orders", makeRecords(1))
		require.NotNil(t, cerr, "status %d", tc.status)
		assert.Equal(t, tc.want, cerr.Type, "status %d", tc.status)
		assert.Equal(t, tc.status, cerr.Status)
		assert.NotEmpty(t, cerr.UserMessage)
	}
}

func TestListRecords(t *testing.T) {
	client := newTestAirtableClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"records": []interface{}{
				map[string]interface{}{"id": "rec1", "fields": map[string]interface{}{"Order Number": "#1001-1"}},
			},
			"offset": "next-page",
		})
	})

	result, cerr := client.ListRecords(context.Background(), "Orders")
	require.Nil(t, cerr)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "rec1", result.Records[0].ID)
	assert.Equal(t, "next-page", result.Offset)
}
