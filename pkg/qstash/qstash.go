package qstash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultURL           = "https://qstash.upstash.io"
	maxResponseSizeBytes = 1 << 20
)

var (
	ErrNotConfigured    = errors.New("qstash is not configured")
	ErrInvalidSignature = errors.New("invalid qstash signature")
)

type Config struct {
	URL               string `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string `split_words:"true"`
	CurrentSigningKey string `split_words:"true"`
	NextSigningKey    string `split_words:"true"`
	// BookingDestination receives one message per confirmed booking.
	BookingDestination string        `split_words:"true"`
	Timeout            time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether publishing is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		baseURL = DefaultURL
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type publishResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// Publish enqueues payload as JSON for delivery to destination and returns the message id.
func (c *Client) Publish(ctx context.Context, destination string, payload any) (string, error) {
	if c.token == "" {
		return "", ErrNotConfigured
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return "", errors.New("qstash destination is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal qstash payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/publish/"+destination, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("read qstash response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("qstash http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed publishResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode qstash response: %w", err)
	}
	if parsed.Error != "" {
		return "", errors.New(parsed.Error)
	}
	return parsed.MessageID, nil
}

// Verify checks the Upstash-Signature header of a delivered message against the current
// signing key, then the next one. url is the public URL QStash called; empty skips that check.
func (c *Client) Verify(signature string, body []byte, url string) error {
	keys := make([]string, 0, 2)
	for _, k := range []string{c.currentSigningKey, c.nextSigningKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ErrNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	var lastErr error
	for _, key := range keys {
		if lastErr = verifyWithKey(signature, body, url, key); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func verifyWithKey(signature string, body []byte, url, key string) error {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(signature, claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer("Upstash"), jwt.WithLeeway(time.Second))
	if err != nil {
		return err
	}

	if url != "" {
		sub, _ := claims.GetSubject()
		if sub != url {
			return fmt.Errorf("subject %q does not match %q", sub, url)
		}
	}

	want, _ := claims["body"].(string)
	sum := sha256.Sum256(body)
	got := base64.URLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(want, "=") != strings.TrimRight(got, "=") {
		return errors.New("body hash mismatch")
	}
	return nil
}
