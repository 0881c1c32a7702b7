package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestUpstashStore(t *testing.T, handler http.HandlerFunc, opts ...StoreOption) *UpstashRedisStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]StoreOption{WithHTTPClient(server.Client())}, opts...)
	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, opts...)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestUpstashRedisStoreSessionKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultStoreKeyPrefix}
	got, err := store.sessionKey("abc")
	if err != nil {
		t.Fatalf("sessionKey() error = %v", err)
	}
	if got != "movebot:session:abc" {
		t.Fatalf("sessionKey() = %q, want %q", got, "movebot:session:abc")
	}

	if _, err := store.sessionKey("   "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("sessionKey() error = %v, want ErrInvalidSession", err)
	}
}

func TestUpstashRedisStoreCommitUsesTransaction(t *testing.T) {
	t.Parallel()

	var (
		gotPath     string
		gotAuth     string
		gotCommands [][]any
	)
	store := newTestUpstashStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotCommands); err != nil {
			t.Errorf("decode commands: %v", err)
		}
		fmt.Fprint(w, `[{"result":"OK"},{"result":2},{"result":1}]`)
	}, WithTTL(90*time.Second))

	now := time.Now().UTC()
	sess := NewSession("s1", ChannelText, "Max", now)
	msgs := []Message{
		{SessionID: "s1", Sender: RoleUser, Text: "hi", CreatedAt: now},
		{SessionID: "s1", Sender: RoleAssistant, Text: "hello", CreatedAt: now},
	}
	if err := store.Commit(context.Background(), sess, msgs); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if gotPath != "/multi-exec" {
		t.Fatalf("path = %q, want /multi-exec", gotPath)
	}
	if gotAuth != "Bearer token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotCommands) != 3 {
		t.Fatalf("commands = %#v, want SET, RPUSH, EXPIRE", gotCommands)
	}
	if gotCommands[0][0] != "SET" || gotCommands[0][1] != "movebot:session:s1" {
		t.Fatalf("command[0] = %#v", gotCommands[0])
	}
	if gotCommands[1][0] != "RPUSH" || len(gotCommands[1]) != 4 {
		t.Fatalf("command[1] = %#v", gotCommands[1])
	}
	if gotCommands[2][0] != "EXPIRE" || gotCommands[2][2] != float64(90) {
		t.Fatalf("command[2] = %#v", gotCommands[2])
	}
}

func TestUpstashRedisStoreCommitSurfacesCommandError(t *testing.T) {
	t.Parallel()

	store := newTestUpstashStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"error":"WRONGTYPE"}]`)
	})

	sess := NewSession("s1", ChannelText, "Max", time.Now())
	if err := store.Commit(context.Background(), sess, nil); err == nil {
		t.Fatal("Commit() error = nil, want error")
	}
}

func TestUpstashRedisStoreLoad(t *testing.T) {
	t.Parallel()

	sess := NewSession("s1", ChannelVoice, "Max", time.Now().UTC())
	sess.EnsureDetail(time.Now()).Origin = "austin"
	payload, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var gotCommand []any
	store := newTestUpstashStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		result, _ := json.Marshal(string(payload))
		fmt.Fprintf(w, `{"result":%s}`, result)
	})

	got, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if gotCommand[0] != "GET" || gotCommand[1] != "movebot:session:s1" {
		t.Fatalf("command = %#v", gotCommand)
	}
	if got.Detail == nil || got.Detail.Origin != "austin" || got.Channel != ChannelVoice {
		t.Fatalf("Load() = %+v", got)
	}
}

func TestUpstashRedisStoreLoadNotFound(t *testing.T) {
	t.Parallel()

	store := newTestUpstashStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	})

	if _, err := store.Load(context.Background(), "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load() error = %v, want ErrSessionNotFound", err)
	}
}

func TestUpstashRedisStoreHistory(t *testing.T) {
	t.Parallel()

	m1, _ := json.Marshal(Message{SessionID: "s1", Sender: RoleUser, Text: "hi"})
	m2, _ := json.Marshal(Message{SessionID: "s1", Sender: RoleAssistant, Text: "hello"})
	list, _ := json.Marshal([]string{string(m1), string(m2)})

	var gotCommand []any
	store := newTestUpstashStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&gotCommand)
		fmt.Fprintf(w, `{"result":%s}`, list)
	})

	got, err := store.History(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if gotCommand[0] != "LRANGE" || gotCommand[2] != float64(-10) {
		t.Fatalf("command = %#v", gotCommand)
	}
	if len(got) != 2 || got[1].Text != "hello" {
		t.Fatalf("History() = %+v", got)
	}
}

func TestUpstashRedisStoreHTTPError(t *testing.T) {
	t.Parallel()

	store := newTestUpstashStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	if _, err := store.Load(context.Background(), "s1"); err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}

func TestTTLSeconds(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]int64{
		500 * time.Millisecond:  1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
		24 * time.Hour:          86400,
	}
	for in, want := range cases {
		if got := ttlSeconds(in); got != want {
			t.Fatalf("ttlSeconds(%v) = %d, want %d", in, got, want)
		}
	}
}
