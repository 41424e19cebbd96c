package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ─── in-memory view cache ────────────────────────────────────────────────────

type viewCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID][]byte
	ttls        map[uuid.UUID]time.Duration
	generations map[uuid.UUID]int64
	gets        int
	invalidated []uuid.UUID
	err         error
}

func newViewCache() *viewCache {
	return &viewCache{
		entries:     map[uuid.UUID][]byte{},
		ttls:        map[uuid.UUID]time.Duration{},
		generations: map[uuid.UUID]int64{},
	}
}

func (c *viewCache) GetCrashGroup(_ context.Context, id uuid.UUID) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return nil, false, c.err
	}
	body, ok := c.entries[id]
	return body, ok, nil
}

func (c *viewCache) CrashGroupGeneration(_ context.Context, id uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.generations[id], nil
}

func (c *viewCache) SetCrashGroup(_ context.Context, id uuid.UUID, generation int64, body []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.generations[id] != generation {
		return false, nil
	}
	c.entries[id] = append([]byte(nil), body...)
	c.ttls[id] = ttl
	return true, nil
}

func (c *viewCache) InvalidateCrashGroup(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	if c.err != nil {
		return c.err
	}
	c.generations[id]++
	delete(c.entries, id)
	return nil
}

var errCacheDown = errors.New("cache down")

// ─── request/response helpers ────────────────────────────────────────────────

func jsonReq(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data
}

type collection struct {
	Data []map[string]any `json:"data"`
	Meta struct {
		Page    int  `json:"page"`
		Limit   int  `json:"limit"`
		Total   int  `json:"total"`
		HasNext bool `json:"has_next"`
	} `json:"meta"`
}

func parseCollection(t *testing.T, rec *httptest.ResponseRecorder) collection {
	t.Helper()
	var c collection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	return c
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

func parseErr(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var env struct {
		Error apiError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error
}

func crashPayload() map[string]any {
	return map[string]any{
		"type":        "CRASH",
		"message":     "IllegalStateException: Fragment not attached",
		"stackTrace":  "at com.example.ProfileFragment.onResume(ProfileFragment.kt:88)",
		"fingerprint": "fp-fragment-not-attached",
		"appVersion":  "3.2.0",
		"sdkVersion":  "1.4.0",
		"platform":    "android",
		"os":          "Android 13",
		"deviceModel": "SM-G991B",
		"sessionId":   "sess-42",
	}
}
