package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client verifies tokens against an HTTP introspection endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a verifier for the given introspection endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Subject     string `json:"subject"`
	DisplayName string `json:"displayName"`
	Credential  string `json:"credential"`
}

// Verify exchanges the token for an identity and a calendar credential.
func (c *Client) Verify(ctx context.Context, token string) (Identity, string, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, "", ErrUnauthorized
	}

	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return Identity{}, "", fmt.Errorf("identity: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Identity{}, "", fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, "", fmt.Errorf("identity: verification call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, "", ErrUnauthorized
	}

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Identity{}, "", fmt.Errorf("identity: decode response: %w", err)
	}
	if decoded.Subject == "" || decoded.Credential == "" {
		return Identity{}, "", ErrUnauthorized
	}

	return Identity{Subject: decoded.Subject, DisplayName: decoded.DisplayName}, decoded.Credential, nil
}
