package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultStoreKeyPrefix = "movebot:"
	maxResponseSizeBytes  = 2 << 20
	scanBatch             = 100
)

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithTTL expires session snapshots and transcripts. Zero keeps them forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore keeps a JSON snapshot per session and a Redis list per transcript,
// written through the Upstash REST API.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultStoreKeyPrefix,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	key, err := s.sessionKey(sessionID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(resp.Result)
}

func (s *UpstashRedisStore) Commit(ctx context.Context, sess *Session, msgs []Message) error {
	if err := checkCommit(sess, msgs); err != nil {
		return err
	}

	sessKey, err := s.sessionKey(sess.ID)
	if err != nil {
		return err
	}
	msgKey := s.keyPrefix + "messages:" + sess.ID

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	set := []any{"SET", sessKey, string(payload)}
	if s.ttl > 0 {
		set = append(set, "EX", ttlSeconds(s.ttl))
	}
	commands := [][]any{set}

	if len(msgs) > 0 {
		push := []any{"RPUSH", msgKey}
		for _, m := range msgs {
			raw, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			push = append(push, string(raw))
		}
		commands = append(commands, push)
		if s.ttl > 0 {
			commands = append(commands, []any{"EXPIRE", msgKey, ttlSeconds(s.ttl)})
		}
	}

	_, err = s.execTx(ctx, commands)
	return err
}

func (s *UpstashRedisStore) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	start := 0
	if limit > 0 {
		start = -limit
	}

	resp, err := s.exec(ctx, []any{"LRANGE", s.keyPrefix + "messages:" + sessionID, start, -1})
	if err != nil {
		return nil, err
	}

	var encoded []string
	if err := json.Unmarshal(resp.Result, &encoded); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	out := make([]Message, 0, len(encoded))
	for _, raw := range encoded {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// DeactivateIdle scans every session snapshot. Not atomic across sessions; a session
// touched during the scan may be written back by whichever commit lands last.
func (s *UpstashRedisStore) DeactivateIdle(ctx context.Context, cutoff time.Time) (int, error) {
	cursor := "0"
	n := 0
	for {
		resp, err := s.exec(ctx, []any{"SCAN", cursor, "MATCH", s.keyPrefix + "session:*", "COUNT", scanBatch})
		if err != nil {
			return n, err
		}
		next, keys, err := decodeScan(resp.Result)
		if err != nil {
			return n, err
		}

		for _, key := range keys {
			got, err := s.exec(ctx, []any{"GET", key})
			if err != nil {
				return n, err
			}
			sess, err := decodeSnapshot(got.Result)
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			if err != nil {
				return n, err
			}
			if !sess.Idle(cutoff) {
				continue
			}
			sess.Deactivate()
			if err := s.Commit(ctx, sess, nil); err != nil {
				return n, err
			}
			n++
		}

		if next == "0" {
			return n, nil
		}
		cursor = next
	}
}

func (s *UpstashRedisStore) sessionKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return s.keyPrefix + "session:" + sessionID, nil
}

func decodeSnapshot(result json.RawMessage) (*Session, error) {
	result = bytes.TrimSpace(result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrSessionNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(encoded), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session loaded from store: %w", err)
	}
	return &sess, nil
}

func decodeScan(result json.RawMessage) (string, []string, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(result, &parts); err != nil || len(parts) != 2 {
		return "", nil, fmt.Errorf("decode scan reply: %s", string(result))
	}
	var cursor string
	if err := json.Unmarshal(parts[0], &cursor); err != nil {
		return "", nil, fmt.Errorf("decode scan cursor: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(parts[1], &keys); err != nil {
		return "", nil, fmt.Errorf("decode scan keys: %w", err)
	}
	return cursor, keys, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}
	raw, err := s.post(ctx, s.baseURL, command)
	if err != nil {
		return nil, err
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

// execTx runs commands in one MULTI/EXEC transaction.
func (s *UpstashRedisStore) execTx(ctx context.Context, commands [][]any) ([]redisRESTResponse, error) {
	raw, err := s.post(ctx, s.baseURL+"/multi-exec", commands)
	if err != nil {
		return nil, err
	}

	var parsed []redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		var single redisRESTResponse
		if json.Unmarshal(raw, &single) == nil && single.Error != "" {
			return nil, errors.New(single.Error)
		}
		return nil, fmt.Errorf("decode redis transaction response: %w", err)
	}
	for i, r := range parsed {
		if r.Error != "" {
			return nil, fmt.Errorf("redis transaction command %d: %s", i, r.Error)
		}
	}
	return parsed, nil
}

func (s *UpstashRedisStore) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
