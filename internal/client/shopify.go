package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
)

// ordersQuery pages through orders with cursor pagination. Field selection
// matches the columns the Airtable mirror needs.
const ordersQuery = `
query GetOrders($first: Int!, $after: String) {
  orders(first: $first, after: $after) {
    nodes {
      id
      name
      legacyResourceId
      metafields(first: 100) {
        nodes {
          key
          value
        }
      }
      customer {
        defaultEmailAddress {
          emailAddress
        }
        defaultPhoneNumber {
          phoneNumber
        }
        displayName
      }
      displayFinancialStatus
      displayFulfillmentStatus
      createdAt
      fulfillments {
        inTransitAt
        deliveredAt
        trackingInfo {
          number
        }
        displayStatus
        events(first: 100) {
          nodes {
            status
            message
          }
        }
      }
      statusPageUrl
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

const orderByIDQuery = `
query GetOrderById($id: ID!) {
  order(id: $id) {
    id
    name
    legacyResourceId
    customer {
      defaultEmailAddress {
        emailAddress
      }
      defaultPhoneNumber {
        phoneNumber
      }
      displayName
    }
    displayFinancialStatus
    displayFulfillmentStatus
    createdAt
    fulfillments {
      inTransitAt
      deliveredAt
      trackingInfo {
        number
      }
      displayStatus
      events(first: 100) {
        nodes {
          status
          message
        }
      }
    }
    statusPageUrl
  }
}`

// webhookSubscribeMutation registers one webhook subscription. One-shot
// administrative action, not part of the sync loop.
const webhookSubscribeMutation = `
mutation webhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    webhookSubscription {
      id
      topic
    }
    userErrors {
      field
      message
    }
  }
}`

var shopifyStatusTable = map[int]statusMapping{
	400: {ErrBadRequest, "The request is malformed or invalid.", "Invalid request. Please check your parameters."},
	401: {ErrUnauthorized, "Authentication failed.", "Authentication failed. Please check your access token."},
	403: {ErrForbidden, "Access denied.", "Access denied. Check your permissions."},
	404: {ErrNotFound, "Resource not found.", "The requested resource was not found."},
	422: {ErrInvalidRequest, "The request cannot be processed.", "The request cannot be processed. Please check your data."},
	429: {ErrRateLimitExceeded, "Rate limit exceeded.", "Too many requests. Please wait and try again."},
	500: {ErrInternalServer, "Shopify server error.", "Shopify server error. Please try again later."},
	502: {ErrBadGateway, "Shopify gateway error.", "Shopify service temporarily unavailable."},
	503: {ErrServiceUnavailable, "Shopify service unavailable.", "Shopify service is temporarily unavailable."},
}

// ShopifyConfig holds connection settings for the Shopify Admin GraphQL API.
type ShopifyConfig struct {
	ShopName    string
	APIVersion  string
	AccessToken string
	// PageDelay is the pause between pagination requests. Zero means the
	// default of 100ms.
	PageDelay time.Duration
	// BaseURL overrides the computed shop URL, for tests.
	BaseURL string
}

// ShopifyClient fetches orders from the Shopify Admin GraphQL API.
type ShopifyClient struct {
	client    *resty.Client
	endpoint  string
	pageDelay time.Duration
	logger    *logger.Logger
}

// NewShopifyClient creates a Shopify client from configuration.
// Parameters:
//   - cfg: shop name, API version, access token, and pagination delay.
//   - log: logger instance.
// Returns:
//   - *ShopifyClient: initialized client with a 30s request timeout.
func NewShopifyClient(cfg *ShopifyConfig, log *logger.Logger) *ShopifyClient {
	c := resty.New()
	c.SetHeader("X-Shopify-Access-Token", cfg.AccessToken)
	c.SetHeader("Content-Type", "application/json")
	c.SetTimeout(30 * time.Second)

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", cfg.ShopName, cfg.APIVersion)
	}

	pageDelay := cfg.PageDelay
	if pageDelay == 0 {
		pageDelay = 100 * time.Millisecond
	}

	return &ShopifyClient{
		client:    c,
		endpoint:  endpoint,
		pageDelay: pageDelay,
		logger:    log,
	}
}

// GraphQL wire types. Nested option wrappers mirror the Admin API shapes and
// flatten into domain types in toDomainOrder.
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type orderNode struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	LegacyResourceID string `json:"legacyResourceId"`
	Metafields       struct {
		Nodes []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"nodes"`
	} `json:"metafields"`
	Customer *struct {
		DefaultEmailAddress *struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"defaultEmailAddress"`
		DefaultPhoneNumber *struct {
			PhoneNumber string `json:"phoneNumber"`
		} `json:"defaultPhoneNumber"`
		DisplayName string `json:"displayName"`
	} `json:"customer"`
	DisplayFinancialStatus   string     `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string     `json:"displayFulfillmentStatus"`
	CreatedAt                time.Time  `json:"createdAt"`
	StatusPageURL            string     `json:"statusPageUrl"`
	Fulfillments             []struct {
		InTransitAt  *time.Time `json:"inTransitAt"`
		DeliveredAt  *time.Time `json:"deliveredAt"`
		TrackingInfo []struct {
			Number string `json:"number"`
		} `json:"trackingInfo"`
		DisplayStatus string `json:"displayStatus"`
		Events        struct {
			Nodes []struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"nodes"`
		} `json:"events"`
	} `json:"fulfillments"`
}

type ordersQueryResponse struct {
	Data struct {
		Orders struct {
			Nodes    []orderNode `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"orders"`
		Order *orderNode `json:"order"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type webhookSubscribeResponse struct {
	Data struct {
		WebhookSubscriptionCreate struct {
			WebhookSubscription *struct {
				ID    string `json:"id"`
				Topic string `json:"topic"`
			} `json:"webhookSubscription"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"webhookSubscriptionCreate"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchResult is the outcome of a full paginated order fetch.
type FetchResult struct {
	Orders       []domain.Order `json:"orders"`
	TotalCount   int            `json:"total_count"`
	BatchSize    int            `json:"batch_size"`
	TotalBatches int            `json:"total_batches"`
}

// FetchAllOrders walks cursor pagination until the upstream reports no further
// pages and returns the concatenated order list. Any page failure aborts the
// whole fetch; pages fetched so far are discarded since the downstream upsert
// is idempotent and the caller can retry from scratch. A fixed small delay is
// inserted between pages to respect Shopify rate limits.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - batchSize: page size passed as the GraphQL `first` argument.
// Returns:
//   - *FetchResult: all orders plus batch metadata.
//   - *Error: typed failure on the first bad page.
func (s *ShopifyClient) FetchAllOrders(ctx context.Context, batchSize int) (*FetchResult, *Error) {
	var all []domain.Order
	cursor := ""
	batches := 0

	s.logger.WithField("batch_size", batchSize).Info("Starting paginated order fetch")

	for {
		vars := map[string]interface{}{"first": batchSize}
		if cursor != "" {
			vars["after"] = cursor
		}

		var resp ordersQueryResponse
		if cerr := s.query(ctx, ordersQuery, vars, &resp); cerr != nil {
			return nil, cerr
		}

		page := resp.Data.Orders
		for _, node := range page.Nodes {
			all = append(all, toDomainOrder(&node))
		}
		batches++

		s.logger.WithFields(logger.Fields{
			"page_count": len(page.Nodes),
			"total":      len(all),
		}).Debug("Fetched orders page")

		if !page.PageInfo.HasNextPage {
			break
		}
		cursor = page.PageInfo.EndCursor

		select {
		case <-ctx.Done():
			return nil, transportError(ctx.Err(), "Shopify")
		case <-time.After(s.pageDelay):
		}
	}

	s.logger.WithField("total", len(all)).Info("Completed paginated order fetch")

	return &FetchResult{
		Orders:       all,
		TotalCount:   len(all),
		BatchSize:    batchSize,
		TotalBatches: batches,
	}, nil
}

// FetchOrderByID looks up a single order by its GID. Administrative use.
func (s *ShopifyClient) FetchOrderByID(ctx context.Context, id string) (*domain.Order, *Error) {
	var resp ordersQueryResponse
	if cerr := s.query(ctx, orderByIDQuery, map[string]interface{}{"id": id}, &resp); cerr != nil {
		return nil, cerr
	}
	if resp.Data.Order == nil {
		return nil, &Error{
			Type:        ErrNotFound,
			Message:     "order not found",
			UserMessage: "The specified order was not found.",
			Status:      404,
		}
	}
	order := toDomainOrder(resp.Data.Order)
	return &order, nil
}

// WebhookSubscription is one topic/callback pair to register.
type WebhookSubscription struct {
	Topic       string `json:"topic"`
	CallbackURL string `json:"callback_url"`
}

// SubscribeWebhook registers a single webhook subscription with Shopify.
// GraphQL user errors surface as INVALID_REQUEST.
func (s *ShopifyClient) SubscribeWebhook(ctx context.Context, sub WebhookSubscription) *Error {
	vars := map[string]interface{}{
		"topic": sub.Topic,
		"webhookSubscription": map[string]interface{}{
			"callbackUrl": sub.CallbackURL,
			"format":      "JSON",
		},
	}

	var resp webhookSubscribeResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(graphQLRequest{Query: webhookSubscribeMutation, Variables: vars}).
		SetResult(&resp).
		Post(s.endpoint)
	if err != nil {
		return transportError(err, "Shopify")
	}
	if !isSuccess(httpResp.StatusCode()) {
		return statusError(httpResp.StatusCode(), shopifyStatusTable, string(httpResp.Body()))
	}
	if len(resp.Errors) > 0 {
		return graphQLErrorFrom(resp.Errors)
	}
	if ues := resp.Data.WebhookSubscriptionCreate.UserErrors; len(ues) > 0 {
		return &Error{
			Type:        ErrInvalidRequest,
			Message:     ues[0].Message,
			UserMessage: fmt.Sprintf("Webhook creation failed: %s", ues[0].Message),
			Status:      422,
		}
	}
	return nil
}

// query executes one GraphQL request and applies the shared error taxonomy:
// transport failures, HTTP status mapping, then GraphQL-level errors.
func (s *ShopifyClient) query(ctx context.Context, q string, vars map[string]interface{}, out *ordersQueryResponse) *Error {
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(graphQLRequest{Query: q, Variables: vars}).
		SetResult(out).
		Post(s.endpoint)
	if err != nil {
		return transportError(err, "Shopify")
	}
	if !isSuccess(httpResp.StatusCode()) {
		return statusError(httpResp.StatusCode(), shopifyStatusTable, string(httpResp.Body()))
	}
	if len(out.Errors) > 0 {
		return graphQLErrorFrom(out.Errors)
	}
	return nil
}

func graphQLErrorFrom(errs []graphQLError) *Error {
	first := errs[0]
	errType := ErrGraphQL
	if first.Extensions.Code != "" {
		errType = ErrorType(first.Extensions.Code)
	}
	msg := first.Message
	if msg == "" {
		msg = "GraphQL error occurred"
	}
	return &Error{
		Type:        errType,
		Message:     msg,
		UserMessage: msg,
		Status:      422,
	}
}

// toDomainOrder flattens a GraphQL order node into the stored record shape.
// Back-reference fields are left nil: they belong to the push stage.
func toDomainOrder(node *orderNode) domain.Order {
	order := domain.Order{
		ShopifyID:                node.ID,
		Name:                     node.Name,
		LegacyResourceID:         node.LegacyResourceID,
		DisplayFinancialStatus:   node.DisplayFinancialStatus,
		DisplayFulfillmentStatus: node.DisplayFulfillmentStatus,
		OrderCreatedAt:           node.CreatedAt,
		StatusPageURL:            node.StatusPageURL,
	}

	if node.Customer != nil {
		order.Customer.DisplayName = node.Customer.DisplayName
		if node.Customer.DefaultEmailAddress != nil {
			order.Customer.Email = node.Customer.DefaultEmailAddress.EmailAddress
		}
		if node.Customer.DefaultPhoneNumber != nil {
			order.Customer.Phone = node.Customer.DefaultPhoneNumber.PhoneNumber
		}
	}

	for _, mf := range node.Metafields.Nodes {
		order.Metafields = append(order.Metafields, domain.Metafield{Key: mf.Key, Value: mf.Value})
	}

	for _, f := range node.Fulfillments {
		fulfillment := domain.Fulfillment{
			InTransitAt:   f.InTransitAt,
			DeliveredAt:   f.DeliveredAt,
			DisplayStatus: f.DisplayStatus,
		}
		for _, t := range f.TrackingInfo {
			fulfillment.TrackingInfo = append(fulfillment.TrackingInfo, domain.TrackingInfo{Number: t.Number})
		}
		for _, e := range f.Events.Nodes {
			fulfillment.Events = append(fulfillment.Events, domain.FulfillmentEvent{Status: e.Status, Message: e.Message})
		}
		order.Fulfillments = append(order.Fulfillments, fulfillment)
	}

	return order
}
