package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"modelrelay/internal/domain"
)

// maxResponseBody is the maximum response body size read from the gateway.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// maxErrorDetail caps how much of an error body is carried in RouteError detail.
const maxErrorDetail = 512

// doJSONRequest performs one HTTP request against the gateway and returns the
// response body. Transport failures, timeouts, and non-200 statuses are all
// converted into the RouteError taxonomy here so every caller classifies the
// same way.
func doJSONRequest(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, domain.WrapRouteError(domain.CodeConnection, "create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, domain.WrapRouteError(domain.CodeConnection, "read response", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// mapTransportError converts a client.Do failure into the taxonomy.
// Deadline/timeout failures become TIMEOUT, everything else CONNECTION.
func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapRouteError(domain.CodeTimeout, "gateway call timed out", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.WrapRouteError(domain.CodeTimeout, "gateway call timed out", err)
	}
	return domain.WrapRouteError(domain.CodeConnection, "gateway request failed", err)
}

// mapHTTPError maps a non-200 gateway status to the RouteError taxonomy.
func mapHTTPError(statusCode int, body []byte) error {
	detail := string(body)
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.NewRouteError(domain.CodeAuth, fmt.Sprintf("gateway rejected credentials (%d)", statusCode)).WithDetail(detail)
	case statusCode == http.StatusTooManyRequests:
		return domain.NewRouteError(domain.CodeQuota, "gateway quota exceeded (429)").WithDetail(detail)
	case statusCode == http.StatusNotFound || strings.Contains(strings.ToLower(detail), "model not found"):
		return domain.NewRouteError(domain.CodeModel, fmt.Sprintf("model not available (%d)", statusCode)).WithDetail(detail)
	default:
		return domain.NewRouteError(domain.CodeConnection, fmt.Sprintf("gateway error %d", statusCode)).WithDetail(detail)
	}
}

// newPooledTransport builds an http.Transport sized for a single gateway
// host with concurrent callers and long-lived connections.
func newPooledTransport(connTimeout time.Duration) *http.Transport {
	if connTimeout <= 0 {
		connTimeout = 30 * time.Second
	}
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     120 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}
