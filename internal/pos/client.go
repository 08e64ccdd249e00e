// Package pos pulls one business day of receipts and cash movements from the
// upstream point-of-sale API.
package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

var (
	// ErrNotConfigured is returned when no base URL is set.
	ErrNotConfigured = errors.New("pos: client not configured")
	// ErrUnauthorized is returned for 401/403 responses.
	ErrUnauthorized = errors.New("pos: unauthorized")
)

// APIError carries a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pos api error: %s", e.Status)
	}
	return fmt.Sprintf("pos api error: %s: %s", e.Status, e.Body)
}

// Line is one sold item on a receipt.
type Line struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Quantity int64  `json:"quantity"`
}

// Receipt is a closed POS receipt.
type Receipt struct {
	ID          string          `json:"id"`
	ClosedAt    time.Time       `json:"closed_at"`
	Total       decimal.Decimal `json:"total"`
	PaymentType string          `json:"payment_type"`
	Voided      bool            `json:"voided"`
	Lines       []Line          `json:"lines"`
}

// Expense is a paid-out recorded on the POS cash drawer.
type Expense struct {
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Day is everything the POS recorded inside one shift window.
type Day struct {
	Window       shift.Window
	Receipts     []Receipt
	Expenses     []Expense
	StartingCash decimal.Decimal
}

// Config configures the client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// Client talks to the POS REST API.
type Client struct {
	http   *resty.Client
	base   string
	logger *slog.Logger
}

type page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type shiftReport struct {
	StartingCash decimal.Decimal `json:"starting_cash"`
	PaidOuts     []Expense       `json:"paid_outs"`
}

// NewClient builds a client with timeout and retry with backoff on transport
// errors, 429 and 5xx responses.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(4 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp != nil && (resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500)
		})
	if cfg.Token != "" {
		httpClient.SetAuthScheme("Bearer")
		httpClient.SetAuthToken(cfg.Token)
	}
	return &Client{http: httpClient, base: cfg.BaseURL, logger: logger.With(slog.String("component", "pos"))}
}

// FetchDay pulls receipts and the shift report for window. The caller's
// deadline bounds every request including retries.
func (c *Client) FetchDay(ctx context.Context, window shift.Window) (Day, error) {
	if c == nil || strings.TrimSpace(c.base) == "" {
		return Day{}, ErrNotConfigured
	}
	since := strconv.FormatInt(window.From.UnixMilli(), 10)
	until := strconv.FormatInt(window.To.UnixMilli(), 10)

	day := Day{Window: window}
	cursor := ""
	for {
		query := map[string]string{"since": since, "until": until}
		if cursor != "" {
			query["cursor"] = cursor
		}
		var resp page[Receipt]
		if err := c.doGet(ctx, "/v1/receipts", query, &resp); err != nil {
			return Day{}, err
		}
		for _, r := range resp.Items {
			if window.Contains(r.ClosedAt) {
				day.Receipts = append(day.Receipts, r)
			}
		}
		if resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	var report shiftReport
	if err := c.doGet(ctx, "/v1/shift-report", map[string]string{"since": since, "until": until}, &report); err != nil {
		return Day{}, err
	}
	day.StartingCash = report.StartingCash
	day.Expenses = report.PaidOuts

	c.logger.Info("fetched pos day",
		slog.Time("from", window.From),
		slog.Int("receipts", len(day.Receipts)),
		slog.Int("paid_outs", len(day.Expenses)),
	)
	return day, nil
}

func (c *Client) doGet(ctx context.Context, path string, query map[string]string, result any) error {
	req := c.http.R().SetContext(ctx).SetResult(result)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("pos request %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}

// Channel maps an upstream payment type to a sales channel.
func Channel(paymentType string) string {
	switch strings.ToLower(strings.TrimSpace(paymentType)) {
	case "cash":
		return "cash"
	case "qr", "promptpay", "qr_code":
		return "qr"
	case "grab", "grabfood", "foodpanda", "lineman", "delivery":
		return "delivery"
	}
	return "other"
}
