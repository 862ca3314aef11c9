package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vivanti/ordersync/internal/logger"
)

// MaxBatchSize is the hard Airtable per-request record ceiling. Callers must
// pre-chunk; the client rejects larger batches rather than splitting silently.
const MaxBatchSize = 10

var airtableStatusTable = map[int]statusMapping{
	400: {ErrBadRequest, "The request encoding is invalid; the request cannot be parsed as valid JSON.", "Invalid request format. Please check your data and try again."},
	401: {ErrUnauthorized, "Accessing a protected resource without authorization or with invalid credentials.", "Authentication failed. Please check your API key."},
	402: {ErrPaymentRequired, "The account associated with the API key has hit a quota limit.", "API quota exceeded. Please upgrade your Airtable plan."},
	403: {ErrForbidden, "Accessing a protected resource with API credentials that do not have access.", "Access denied. Check your API key permissions."},
	404: {ErrNotFound, "Route or resource is not found.", "The requested resource was not found."},
	413: {ErrEntityTooLarge, "The request exceeded the maximum allowed payload size.", "Request data is too large. Please reduce the payload size."},
	422: {ErrInvalidRequest, "The request data is invalid.", "Invalid request data. Please check your input."},
	429: {ErrRateLimitExceeded, "Rate limit exceeded. Please try again later.", "Too many requests. Please wait 30 seconds and try again."},
	500: {ErrInternalServer, "The server encountered an unexpected condition.", "Server error occurred. Please try again later."},
	502: {ErrBadGateway, "Airtable servers are restarting or an unexpected outage is in progress.", "Service temporarily unavailable. Please try again."},
	503: {ErrServiceUnavailable, "The server could not process your request in time.", "Service is temporarily unavailable. Please try again."},
}

// AirtableConfig holds connection settings for the Airtable REST API.
type AirtableConfig struct {
	APIKey string
	BaseID string
	// BaseURL overrides the computed API URL, for tests.
	BaseURL string
}

// AirtableClient issues batched create/patch calls against one Airtable base.
type AirtableClient struct {
	client  *resty.Client
	baseURL string
	logger  *logger.Logger
}

// NewAirtableClient creates an Airtable client from configuration.
// Parameters:
//   - cfg: API key and base id.
//   - log: logger instance.
// Returns:
//   - *AirtableClient: initialized client with a 30s request timeout.
func NewAirtableClient(cfg *AirtableConfig, log *logger.Logger) *AirtableClient {
	c := resty.New()
	c.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	c.SetHeader("Content-Type", "application/json")
	c.SetTimeout(30 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.airtable.com/v0/" + cfg.BaseID
	}

	return &AirtableClient{
		client:  c,
		baseURL: baseURL,
		logger:  log,
	}
}

// Fields is one row's column values keyed by exact column name.
type Fields map[string]interface{}

// Record is a tabular record in Airtable wire shape. ID is empty for a record
// that has not been created downstream yet; the create payload omits it.
type Record struct {
	ID     string `json:"id,omitempty"`
	Fields Fields `json:"fields"`
}

type recordsRequest struct {
	Records []Record `json:"records"`
}

// BatchResult echoes the created or updated records from one batch call.
type BatchResult struct {
	Records []Record `json:"records"`
}

// ListResult is a table dump page.
type ListResult struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// CreateBatch creates up to MaxBatchSize records in the given table.
func (a *AirtableClient) CreateBatch(ctx context.Context, tableName string, records []Record) (*BatchResult, *Error) {
	return a.sendBatch(ctx, "POST", tableName, records)
}

// UpsertBatch patches up to MaxBatchSize existing records in the given table.
// Each record must carry its Airtable record id.
func (a *AirtableClient) UpsertBatch(ctx context.Context, tableName string, records []Record) (*BatchResult, *Error) {
	return a.sendBatch(ctx, "PATCH", tableName, records)
}

func (a *AirtableClient) sendBatch(ctx context.Context, method, tableName string, records []Record) (*BatchResult, *Error) {
	if len(records) > MaxBatchSize {
		return nil, &Error{
			Type:        ErrInvalidRequest,
			Message:     fmt.Sprintf("batch of %d records exceeds the Airtable limit of %d per request", len(records), MaxBatchSize),
			UserMessage: "Too many records in one batch. Please reduce the batch size.",
			Status:      422,
		}
	}

	var result BatchResult
	req := a.client.R().
		SetContext(ctx).
		SetBody(recordsRequest{Records: records}).
		SetResult(&result)

	endpoint := a.baseURL + "/" + url.PathEscape(tableName)

	var httpResp *resty.Response
	var err error
	switch method {
	case "PATCH":
		httpResp, err = req.Patch(endpoint)
	default:
		httpResp, err = req.Post(endpoint)
	}
	if err != nil {
		return nil, transportError(err, "Airtable")
	}
	if !isSuccess(httpResp.StatusCode()) {
		return nil, statusError(httpResp.StatusCode(), airtableStatusTable, string(httpResp.Body()))
	}

	a.logger.WithFields(logger.Fields{
		"table":  tableName,
		"method": method,
		"count":  len(result.Records),
	}).Debug("Airtable batch call completed")

	return &result, nil
}

// ListRecords dumps one page of a table. Administrative use.
func (a *AirtableClient) ListRecords(ctx context.Context, tableName string) (*ListResult, *Error) {
	var result ListResult
	httpResp, err := a.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(a.baseURL + "/" + url.PathEscape(tableName))
	if err != nil {
		return nil, transportError(err, "Airtable")
	}
	if !isSuccess(httpResp.StatusCode()) {
		return nil, statusError(httpResp.StatusCode(), airtableStatusTable, string(httpResp.Body()))
	}
	return &result, nil
}
