package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dunamismax/pixelprep/internal/id"
)

const (
	HeaderSignature = "X-Pixelprep-Signature"
	HeaderTimestamp = "X-Pixelprep-Timestamp"
	HeaderEvent     = "X-Pixelprep-Event"
	// HeaderDelivery is the same on every retry of one Send.
	HeaderDelivery = "X-Pixelprep-Delivery"
)

const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// errPermanent marks responses that retrying cannot fix.
var errPermanent = errors.New("permanent webhook failure")

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         logrus.FieldLogger
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: initialBackoff,
		maxBackoff:     max(cfg.MaxBackoff, initialBackoff),
		logger:         logrus.StandardLogger(),
	}
}

// WithLogger sets the logger used to report failed attempts.
func (c *Client) WithLogger(logger logrus.FieldLogger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Send posts payload as JSON to endpoint, signing the timestamp and body. 4xx
// responses other than 429 are not retried. An empty endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint, event string, payload any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set(HeaderTimestamp, timestamp)
	headers.Set(HeaderSignature, Sign(c.signingSecret, timestamp, body))
	headers.Set(HeaderEvent, event)
	headers.Set(HeaderDelivery, id.New())

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var delay time.Duration
		delay, lastErr = c.post(ctx, endpoint, headers, body)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errPermanent) {
			return fmt.Errorf("webhook rejected: %w", lastErr)
		}
		c.logger.WithFields(logrus.Fields{
			"component": "webhook",
			"event":     event,
			"attempt":   attempt,
			"delivery":  headers.Get(HeaderDelivery),
		}).WithError(lastErr).Warn("webhook attempt failed")
		if attempt == c.maxAttempts {
			break
		}

		wait := backoff
		if delay > 0 {
			wait = min(delay, c.maxBackoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// post makes one delivery attempt. A retryable response with a Retry-After in
// seconds reports that delay alongside the error.
func (c *Client) post(ctx context.Context, endpoint string, headers http.Header, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: build webhook request: %v", errPermanent, err)
	}
	req.Header = headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("webhook returned status=%d", resp.StatusCode)
	default:
		return 0, fmt.Errorf("%w: webhook returned status=%d", errPermanent, resp.StatusCode)
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Sign returns the signature header value: hex HMAC-SHA256 over
// "<timestamp>.<body>" prefixed with "sha256=".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
