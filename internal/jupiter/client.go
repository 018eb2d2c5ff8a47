// internal/jupiter/client.go
package jupiter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	ErrNoPrice = errors.New("price not available")
	ErrNoRoute = errors.New("no swap route")
)

// Config for the Jupiter HTTP API.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// Client talks to the Jupiter price and swap APIs.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a new Jupiter client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(10 * cfg.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return err != nil
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429: уважаем Retry-After
			if resp.StatusCode() == http.StatusTooManyRequests {
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && seconds > 0 {
					return time.Duration(seconds) * time.Second, nil
				}
			}
			return 0, nil
		})
	if cfg.APIKey != "" {
		httpClient.SetHeader("x-api-key", cfg.APIKey)
	}

	return &Client{
		http:   httpClient,
		logger: logger.Named("jupiter"),
	}
}

// Price returns the price of mint denominated in quoteMint, derived from
// the USD prices of both tokens.
func (c *Client) Price(ctx context.Context, mint, quoteMint string) (decimal.Decimal, error) {
	if mint == quoteMint {
		return decimal.NewFromInt(1), nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", mint+","+quoteMint).
		Get("/price/v3")
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request: %w", err)
	}
	if err := checkResponse("price", resp); err != nil {
		return decimal.Zero, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return decimal.Zero, fmt.Errorf("price: invalid json response")
	}
	base, err := usdPrice(body, mint)
	if err != nil {
		return decimal.Zero, err
	}
	quote, err := usdPrice(body, quoteMint)
	if err != nil {
		return decimal.Zero, err
	}

	price := base.Div(quote)
	c.logger.Debug("Price fetched",
		zap.String("mint", mint),
		zap.String("quote_mint", quoteMint),
		zap.String("price", price.String()))
	return price, nil
}

func usdPrice(body []byte, mint string) (decimal.Decimal, error) {
	res := gjson.GetBytes(body, gjson.Escape(mint)+".usdPrice")
	if !res.Exists() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, mint)
	}
	price, err := decimal.NewFromString(res.String())
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s has price %q", ErrNoPrice, mint, res.String())
	}
	return price, nil
}

func checkResponse(op string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	msg := gjson.GetBytes(resp.Body(), "error").String()
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return fmt.Errorf("%s: http %d: %s", op, resp.StatusCode(), msg)
}
