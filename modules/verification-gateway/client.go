package verificationgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	"github.com/devilx291/social-loan-ledger-82/internal/metrics"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

// VerificationsPath is the gateway endpoint, relative to the base URL.
const VerificationsPath = "/v1/verifications"

// maxResponseBytes caps the decoded response body.
const maxResponseBytes = 64 << 10

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) { h.client = c }
}

// WithTimeout sets a per-request deadline on the default client. Zero keeps
// the caller's context as the only bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(h *HTTPClient) { h.client.Timeout = d }
}

// HTTPClient talks to a remote gateway over JSON.
//
// Exactly one POST is made per Verify call; failures are never retried.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPClient returns a client for the gateway at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: strings.TrimRight(baseURL, "/") + VerificationsPath,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log.WithComponent("verification-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify implements Verifier.
func (c *HTTPClient) Verify(ctx context.Context, req Request) (Result, error) {
	res, err := c.verify(ctx, req)
	if err != nil {
		metrics.RecordVerification("transport_failure")
		c.logger.Warn().Err(err).Str("subject_id", req.SubjectID).Msg("verification call failed")
		return Result{}, kycerr.New(kycerr.VerificationTransportFailure, "verify", err)
	}

	if res.Verified {
		metrics.RecordVerification("verified")
	} else {
		metrics.RecordVerification("rejected")
	}
	c.logger.Info().
		Str("subject_id", req.SubjectID).
		Bool("verified", res.Verified).
		Msg("verification decided")
	return res, nil
}

func (c *HTTPClient) verify(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	// verified is mandatory: a body without it is not a decision.
	var decoded struct {
		Verified *bool  `json:"verified"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Verified == nil {
		return Result{}, fmt.Errorf("decode response: missing verified field")
	}
	return Result{Verified: *decoded.Verified, Message: decoded.Message}, nil
}
