package push

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const (
	hostSandbox    = "https://api.sandbox.push.apple.com"
	hostProduction = "https://api.push.apple.com"
)

// DeviceTokenInvalidError marks a permanent 410 from the gateway: the
// device no longer holds the pass and its registration should be
// retired.
type DeviceTokenInvalidError struct {
	Reason string
}

func (e *DeviceTokenInvalidError) Error() string {
	return fmt.Sprintf("device token no longer valid: %s", e.Reason)
}

// GatewayError is any other non-200 response from the gateway.
type GatewayError struct {
	Status int
	Reason string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("push gateway rejected delivery: status=%d reason=%s", e.Status, e.Reason)
}

// Pusher delivers one background notification to one device token.
type Pusher interface {
	Push(ctx context.Context, deviceToken string) error
}

// Client talks HTTP/2 to the wallet push gateway.
type Client struct {
	host   string
	topic  string
	tokens *TokenCache
	http   *http.Client
}

type gatewayResponse struct {
	Reason string `json:"reason"`
}

func NewClient(production bool, topic string, tokens *TokenCache) *Client {
	host := hostSandbox
	if production {
		host = hostProduction
	}
	return &Client{
		host:   host,
		topic:  topic,
		tokens: tokens,
		http: &http.Client{
			Transport: &http2.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
			Timeout: 20 * time.Second,
		},
	}
}

// Push sends an empty-payload background notification. The pass data
// itself travels over the pull protocol; the push only wakes the
// device up.
func (c *Client) Push(ctx context.Context, deviceToken string) error {
	bearer, err := c.tokens.Bearer()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/3/device/%s", c.host, deviceToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(`{"aps":{}}`)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("apns-topic", c.topic)
	req.Header.Set("apns-push-type", "background")
	req.Header.Set("apns-priority", "5")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var parsed gatewayResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode == http.StatusGone {
		return &DeviceTokenInvalidError{Reason: parsed.Reason}
	}
	return &GatewayError{Status: resp.StatusCode, Reason: parsed.Reason}
}

var _ Pusher = (*Client)(nil)
