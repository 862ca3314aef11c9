package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivanti/ordersync/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

func newTestShopifyClient(t *testing.T, handler http.HandlerFunc) *ShopifyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewShopifyClient(&ShopifyConfig{
		AccessToken: "test-token",
		PageDelay:   time.Millisecond,
		BaseURL:     srv.URL,
	}, testLogger())
}

func orderNodeJSON(id, name, legacyID string) map[string]interface{} {
	return map[string]interface{}{
		"id":                       id,
		"name":                     name,
		"legacyResourceId":         legacyID,
		"displayFinancialStatus":   "PAID",
		"displayFulfillmentStatus": "UNFULFILLED",
		"createdAt":                "2025-03-01T10:00:00Z",
		"statusPageUrl":            "https://example.com/" + legacyID,
	}
}

func TestFetchAllOrdersPagination(t *testing.T) {
	var calls []map[string]interface{}

	client := newTestShopifyClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Shopify-Access-Token"))

		var req struct {
			Variables map[string]interface{} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, req.Variables)

		var page map[string]interface{}
		if len(calls) == 1 {
			page = map[string]interface{}{
				"nodes": []interface{}{
					orderNodeJSON("gid-1", "#1001", "1"),
					orderNodeJSON("gid-2", "#1002", "2"),
				},
				"pageInfo": map[string]interface{}{"hasNextPage": true, "endCursor": "cursor-1"},
			}
		} else {
			page = map[string]interface{}{
				"nodes": []interface{}{
					orderNodeJSON("gid-3", "#1003", "3"),
				},
				"pageInfo": map[string]interface{}{"hasNextPage": false},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"orders": page},
		})
	})

	result, cerr := client.FetchAllOrders(context.Background(), 150)
	require.Nil(t, cerr)

	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 2, result.TotalBatches)
	assert.Equal(t, 150, result.BatchSize)
	require.Len(t, result.Orders, 3)
	assert.Equal(t, "gid-1", result.Orders[0].ShopifyID)
	assert.Equal(t, "#1003", result.Orders[2].Name)

	// First call has no cursor; the second carries the page-1 end cursor.
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0], "after")
	assert.Equal(t, "cursor-1", calls[1]["after"])
	assert.Equal(t, float64(150), calls[0]["first"])
}

func TestFetchAllOrdersRateLimited(t *testing.T) {
	client := newTestShopifyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, cerr := client.FetchAllOrders(context.Background(), 150)
	require.NotNil(t, cerr)
	assert.Equal(t, ErrRateLimitExceeded, cerr.Type)
	assert.Equal(t, 429, cerr.Status)
	assert.True(t, cerr.IsRateLimited())
}

func TestFetchAllOrdersStatusMapping(t *testing.T) {
	testCases := []struct {
		status int
		want   ErrorType
	}{
		{401, ErrUnauthorized},
		{403, ErrForbidden},
		{404, ErrNotFound},
		{500, ErrInternalServer},
		{503, ErrServiceUnavailable},
	}

	for _, tc := range testCases {
		client := newTestShopifyClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, cerr := client.FetchAllOrders(context.Background(), 150)
		require.NotNil(t, cerr, "status %d", tc.status)
		assert.Equal(t, tc.want, cerr.Type, "status %d", tc.status)
		assert.Equal(t, tc.status, cerr.Status)
	}
}

func TestFetchAllOrdersGraphQLError(t *testing.T) {
	client := newTestShopifyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []interface{}{
				map[string]interface{}{
					"message":    "Throttled",
					"extensions": map[string]interface{}{"code": "THROTTLED"},
				},
			},
		})
	})

	_, cerr := client.FetchAllOrders(context.Background(), 150)
	require.NotNil(t, cerr)
	assert.Equal(t, ErrorType("THROTTLED"), cerr.Type)
	assert.Equal(t, "Throttled", cerr.Message)
}

func TestFetchOrderByID(t *testing.T) {
	client := newTestShopifyClient(t, func(w http.ResponseWriter, r *http.Request) {
		node := orderNodeJSON("gid-9", "#1009", "9")
		node["customer"] = map[string]interface{}{
			"displayName":         "Jo Bloggs",
			"defaultEmailAddress": map[string]interface{}{"emailAddress": "jo@example.com"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"order": node},
		})
	})

	order, cerr := client.FetchOrderByID(context.Background(), "gid-9")
	require.Nil(t, cerr)
	assert.Equal(t, "gid-9", order.ShopifyID)
	assert.Equal(t, "Jo Bloggs", order.Customer.DisplayName)
	assert.Equal(t, "jo@example.com", order.Customer.Email)
	assert.Nil(t, order.AirtableRecordID)
}

func TestFetchOrderByIDNotFound(t *testing.T) {
	client := newTestShopifyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"order": nil},
		})
	})

	_, cerr := client.FetchOrderByID(context.Background(), "gid-missing")
	require.NotNil(t, cerr)
	assert.Equal(t, ErrNotFound, cerr.Type)
	assert.Equal(t, 404, cerr.Status)
}

func TestSubscribeWebhookUserError(t *testing.T) {
	client := newTestShopifyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"webhookSubscriptionCreate": map[string]interface{}{
					"userErrors": []interface{}{
						map[string]interface{}{"message": "Address is invalid"},
					},
				},
			},
		})
	})

	cerr := client.SubscribeWebhook(context.Background(), WebhookSubscription{
		Topic:       "ORDERS_UPDATED",
		CallbackURL: "https://example.com/hook",
	})
	require.NotNil(t, cerr)
	assert.Equal(t, ErrInvalidRequest, cerr.Type)
	assert.Contains(t, cerr.Message, "Address is invalid")
}
