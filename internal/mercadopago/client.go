// Package mercadopago is a minimal client for the Mercado Pago payments API,
// covering PIX charge creation and payment lookup.
package mercadopago

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/fbccsz/yshpics/internal/domain/charge"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.mercadopago.com"

// timeLayout is the timestamp format the API accepts and emits.
const timeLayout = "2006-01-02T15:04:05.000-07:00"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

var _ charge.Processor = (*Client)(nil)

// Client talks to the payments API. Every call is authenticated with the
// credential passed to it, never with a platform-wide token.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// CreatePayment creates a PIX payment. A 4xx answer or a payment that is not
// pending is returned as *charge.RejectedError; anything else that fails is a
// transport error.
func (c *Client) CreatePayment(ctx context.Context, credential string, req charge.PaymentRequest, idempotencyKey string) (*charge.Payment, error) {
	body := encodePaymentRequest(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)

	return c.do(httpReq, credential)
}

// GetPayment fetches the authoritative state of a payment.
func (c *Client) GetPayment(ctx context.Context, credential, paymentID string) (*charge.Payment, error) {
	u := c.baseURL + "/v1/payments/" + url.PathEscape(paymentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	return c.do(httpReq, credential)
}

func (c *Client) do(req *http.Request, credential string) (*charge.Payment, error) {
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &charge.RejectedError{
			StatusCode: resp.StatusCode,
			Message:    decodeErrorMessage(data),
		}
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, decodeErrorMessage(data))
	}

	p, err := decodePayment(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
