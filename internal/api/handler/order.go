package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vivanti/ordersync/internal/client"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/repository"
)

// OrderHandler exposes stored orders plus direct upstream and downstream
// lookups for inspection.
type OrderHandler struct {
	orders    *repository.OrderRepository
	shopify   *client.ShopifyClient
	airtable  *client.AirtableClient
	tableName string
	logger    *logger.Logger
}

// NewOrderHandler creates a new order handler.
// Parameters:
//   - orders: order repository.
//   - shopify: upstream client for direct order lookups.
//   - airtable: downstream client for table dumps.
//   - tableName: destination Airtable table.
//   - log: logger instance.
// Returns:
//   - *OrderHandler: initialized handler.
func NewOrderHandler(orders *repository.OrderRepository, shopify *client.ShopifyClient, airtable *client.AirtableClient, tableName string, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders:    orders,
		shopify:   shopify,
		airtable:  airtable,
		tableName: tableName,
		logger:    log,
	}
}

// ListOrders handles GET /api/v1/orders with limit/offset pagination over the
// intermediate store.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	limit := 50
	offset := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit: must be an integer between 1 and 500",
			})
			return
		}
		limit = parsed
	}
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid offset: must be a non-negative integer",
			})
			return
		}
		offset = parsed
	}

	orders, total, err := h.orders.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list orders: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetOrder handles GET /api/v1/orders/:id against the intermediate store.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetByShopifyID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get order: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetShopifyOrder handles GET /api/v1/shopify/orders/:id, a live upstream
// lookup that bypasses the store.
func (h *OrderHandler) GetShopifyOrder(c *gin.Context) {
	order, cerr := h.shopify.FetchOrderByID(c.Request.Context(), c.Param("id"))
	if cerr != nil {
		c.JSON(clientErrorStatus(cerr), gin.H{
			"error": cerr.UserMessage,
			"type":  cerr.Type,
		})
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListAirtableRecords handles GET /api/v1/airtable/records, a live dump of
// the destination table.
func (h *OrderHandler) ListAirtableRecords(c *gin.Context) {
	result, cerr := h.airtable.ListRecords(c.Request.Context(), h.tableName)
	if cerr != nil {
		c.JSON(clientErrorStatus(cerr), gin.H{
			"error": cerr.UserMessage,
			"type":  cerr.Type,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": result.Records,
		"total":   len(result.Records),
		"offset":  result.Offset,
	})
}

// SubscribeWebhookRequest is the webhook registration request body.
type SubscribeWebhookRequest struct {
	Topic       string `json:"topic" binding:"required"`
	CallbackURL string `json:"callback_url" binding:"required,url"`
}

// SubscribeWebhook handles POST /api/v1/shopify/webhooks.
func (h *OrderHandler) SubscribeWebhook(c *gin.Context) {
	var req SubscribeWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	cerr := h.shopify.SubscribeWebhook(c.Request.Context(), client.WebhookSubscription{
		Topic:       req.Topic,
		CallbackURL: req.CallbackURL,
	})
	if cerr != nil {
		c.JSON(clientErrorStatus(cerr), gin.H{
			"error": cerr.UserMessage,
			"type":  cerr.Type,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Webhook subscription created",
		"topic":   req.Topic,
	})
}

// clientErrorStatus maps an external client error to the HTTP status this
// service answers with. Upstream statuses pass through; transport-level
// failures become 502.
func clientErrorStatus(cerr *client.Error) int {
	if cerr.Status != 0 {
		return cerr.Status
	}
	return http.StatusBadGateway
}
