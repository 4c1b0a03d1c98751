/*
Package scoring provides the HTTP anomaly-scoring collaborator.

PURPOSE:
  Implements recon.Scorer against a remote scoring endpoint. The client
  submits one normalized feature vector per labor line and returns one
  anomaly score per line.

WIRE FORMAT:
  Request:  POST {endpoint}  {"instances": [[h, ot, rate, cost], ...]}
  Response: 200              {"scores": [s0, s1, ...]}

ERROR MAPPING:
  The anomaly chain decides between retrying and degrading based on the
  recon scorer sentinels, so every failure mode maps onto one:
    429            -> ErrScorerThrottled    (transient)
    503            -> ErrScorerUnavailable  (transient)
    other 5xx      -> ErrScorerUnavailable  (transient)
    400, other 4xx -> ErrScorerInvalidInput (permanent)
    422            -> ErrScorerModel        (permanent)
    network error  -> ErrScorerUnavailable  (transient)
    bad body/shape -> ErrScorerModel        (permanent)

  Retries are NOT done here - the chain owns the retry budget. The client
  does exactly one attempt per Score call.

SEE ALSO:
  - recon/errors.go: Sentinel taxonomy
  - recon/anomaly.go: RemoteStrategy retry loop
*/
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/auditworks/recon-engine/recon"
)

// Client scores feature batches against a remote HTTP endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (useful for tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a scoring client for the given endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scoreRequest struct {
	Instances [][]float64 `json:"instances"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Score submits one feature batch and returns one score per vector. Failures
// wrap the recon scorer sentinels so the caller can classify them.
func (c *Client) Score(ctx context.Context, features [][]float64) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{Instances: features})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding features: %v", recon.ErrScorerInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", recon.ErrScorerInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recon.ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", recon.ErrScorerModel, err)
	}
	if len(result.Scores) != len(features) {
		return nil, fmt.Errorf("%w: %d scores for %d instances",
			recon.ErrScorerModel, len(result.Scores), len(features))
	}

	c.log.Debug("scoring call succeeded", zap.Int("instances", len(features)))
	return result.Scores, nil
}

// statusError maps a non-200 response onto the scorer sentinel taxonomy.
func (c *Client) statusError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		sentinel = recon.ErrScorerThrottled
	case resp.StatusCode == http.StatusServiceUnavailable:
		sentinel = recon.ErrScorerUnavailable
	case resp.StatusCode == http.StatusUnprocessableEntity:
		sentinel = recon.ErrScorerModel
	case resp.StatusCode >= 500:
		sentinel = recon.ErrScorerUnavailable
	default:
		sentinel = recon.ErrScorerInvalidInput
	}

	c.log.Warn("scoring call failed",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", detail))
	return fmt.Errorf("%w: endpoint returned %d", sentinel, resp.StatusCode)
}
