package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

func TestNewUpstashRedisStoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "", Token: "tok"}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://example.upstash.io", Token: ""}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "not a url", Token: "tok"}); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestSaveTurnIssuesPushTrimExpire(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		commands [][]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
		}
		mu.Lock()
		commands = append(commands, cmd)
		mu.Unlock()
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	turn := &contractx.Turn{
		ID:       "t1",
		CallerID: "caller-1",
		Query:    "total sales",
		Answer:   "Found 3 record(s).",
		PlanType: planx.TypeStructuredOnly,
	}
	if err := store.SaveTurn(context.Background(), turn); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(commands) != 3 {
		t.Fatalf("expected LPUSH+LTRIM+EXPIRE, got %#v", commands)
	}
	wantOps := []string{"LPUSH", "LTRIM", "EXPIRE"}
	for i, op := range wantOps {
		if commands[i][0] != op {
			t.Fatalf("command[%d] = %v, want %s", i, commands[i][0], op)
		}
		if commands[i][1] != defaultKeyPrefix+"caller-1" {
			t.Fatalf("command[%d] key = %v", i, commands[i][1])
		}
	}
	if turn.CreatedAt.IsZero() {
		t.Fatal("SaveTurn must stamp CreatedAt")
	}
}

func TestSaveTurnSkipsExpireWithZeroTTL(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		commands [][]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var cmd []any
		_ = json.NewDecoder(r.Body).Decode(&cmd)
		mu.Lock()
		commands = append(commands, cmd)
		mu.Unlock()
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
		WithTTL(0),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if err := store.SaveTurn(context.Background(), &contractx.Turn{CallerID: "c1"}); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(commands) != 2 {
		t.Fatalf("expected LPUSH+LTRIM only, got %#v", commands)
	}
}

func TestRecentTurnsDecodesNewestFirst(t *testing.T) {
	t.Parallel()

	first := contractx.Turn{ID: "t2", CallerID: "c1", Query: "second", CreatedAt: time.Now().UTC()}
	second := contractx.Turn{ID: "t1", CallerID: "c1", Query: "first", CreatedAt: time.Now().UTC().Add(-time.Minute)}

	firstRaw, _ := json.Marshal(first)
	secondRaw, _ := json.Marshal(second)
	encoded, _ := json.Marshal([]string{string(firstRaw), string(secondRaw)})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
		}
		if cmd[0] != "LRANGE" {
			t.Errorf("command = %v, want LRANGE", cmd[0])
		}
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	turns, err := store.RecentTurns(context.Background(), "c1", 5)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].ID != "t2" || turns[1].ID != "t1" {
		t.Fatalf("turns out of order: %s, %s", turns[0].ID, turns[1].ID)
	}
}

func TestRecentTurnsEmptyList(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	turns, err := store.RecentTurns(context.Background(), "c1", 5)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if turns != nil {
		t.Fatalf("expected nil turns, got %#v", turns)
	}
}

func TestExecSurfacesRedisError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		fmt.Fprint(w, `{"error":"WRONGTYPE Operation against a key"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if err := store.SaveTurn(context.Background(), &contractx.Turn{CallerID: "c1"}); err == nil {
		t.Fatal("expected redis error to surface")
	}
}

func TestTTLSeconds(t *testing.T) {
	t.Parallel()

	if got := ttlSeconds(90 * time.Second); got != 90 {
		t.Fatalf("ttlSeconds(90s) = %d", got)
	}
	if got := ttlSeconds(1500 * time.Millisecond); got != 2 {
		t.Fatalf("ttlSeconds(1.5s) = %d, want 2", got)
	}
	if got := ttlSeconds(0); got != 1 {
		t.Fatalf("ttlSeconds(0) = %d, want 1", got)
	}
}
