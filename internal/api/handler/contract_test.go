package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kiranshivaraju/crashd/internal/api"
	"github.com/kiranshivaraju/crashd/internal/api/handler"
	mw "github.com/kiranshivaraju/crashd/internal/api/middleware"
	"github.com/kiranshivaraju/crashd/internal/crash"
	"github.com/kiranshivaraju/crashd/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── full router wiring ──────────────────────────────────────────────────────

func newContractServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	vc := newViewCache()
	ingestor := crash.NewIngestor(st, crash.WithGroupCache(vc))
	groups := handler.NewCrashGroups(st, vc, groupTTL)

	router := api.NewRouter(api.Dependencies{
		CreateCrashReport: handler.NewCreateCrashReportHandler(ingestor),
		RegisterSession:   handler.NewRegisterSessionHandler(ingestor.Sessions()),
		ListCrashGroups:   groups.List,
		GetCrashGroup:     groups.Get,
		UpdateCrashGroup:  groups.Update,
		ListGroupReports:  groups.Reports,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st
}

func send(t *testing.T, srv *httptest.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := jsonReq(t, method, srv.URL+path, body)
	req.RequestURI = ""
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	for k, v := range resp.Header {
		rec.Header()[k] = v
	}
	_, err = rec.Body.ReadFrom(resp.Body)
	require.NoError(t, err)
	return rec
}

// ─── contract tests ──────────────────────────────────────────────────────────

func TestContract_SessionThenCrashLifecycle(t *testing.T) {
	srv, st := newContractServer(t)

	rec := send(t, srv, "POST", "/api/v1/app/crash-reports/session",
		map[string]any{"sessionId": "sess-42", "appVersion": "3.2.0", "platform": "android"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(mw.RequestIDHeader))

	rec = send(t, srv, "POST", "/api/v1/app/crash-reports/create", crashPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := parseData(t, rec)
	assert.Len(t, created, 3)
	assert.Contains(t, created, "id")
	assert.Contains(t, created, "groupId")
	assert.Regexp(t, wireTimestamp, created["createdAt"])

	groupPath := "/api/v1/crash-groups/" + created["groupId"].(string)
	rec = send(t, srv, "GET", groupPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	group := parseData(t, rec)
	for _, key := range []string{
		"id", "fingerprint", "title", "status", "type", "firstSeenAt", "lastSeenAt",
		"occurrenceCount", "affectedUserCount", "affectedVersions", "latestStackTrace",
		"platform", "resolvedInVersion",
	} {
		assert.Contains(t, group, key)
	}
	assert.Regexp(t, wireTimestamp, group["firstSeenAt"])

	sess, err := st.GetSession(context.Background(), "sess-42")
	require.NoError(t, err)
	assert.True(t, sess.HasCrash)

	rec = send(t, srv, "PATCH", groupPath, map[string]any{"status": "RESOLVED", "resolvedInVersion": "3.2.0"})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := crashPayload()
	payload["appVersion"] = "3.2.1"
	require.Equal(t, http.StatusCreated, send(t, srv, "POST", "/api/v1/app/crash-reports/create", payload).Code)

	rec = send(t, srv, "GET", groupPath, nil)
	group = parseData(t, rec)
	assert.Equal(t, "REGRESSED", group["status"])
	assert.Equal(t, float64(2), group["occurrenceCount"])
	assert.ElementsMatch(t, []any{"3.2.0", "3.2.1"}, group["affectedVersions"])

	rec = send(t, srv, "GET", groupPath+"/reports", nil)
	c := parseCollection(t, rec)
	assert.Len(t, c.Data, 2)
	assert.Equal(t, 2, c.Meta.Total)
}

func TestContract_ErrorEnvelope(t *testing.T) {
	srv, _ := newContractServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed crash", "POST", "/api/v1/app/crash-reports/create", "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"invalid crash", "POST", "/api/v1/app/crash-reports/create", map[string]any{"type": "CRASH"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"structured crash field", "POST", "/api/v1/app/crash-reports/create", map[string]any{"type": []any{"CRASH"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid session", "POST", "/api/v1/app/crash-reports/session", map[string]any{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown route", "GET", "/api/v1/unknown", nil, http.StatusNotFound, "NOT_FOUND"},
		{"health not wired", "GET", "/api/v1/app/health", nil, http.StatusNotImplemented, "NOT_IMPLEMENTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			e := parseErr(t, rec)
			assert.Equal(t, tt.code, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestContract_ConcurrentCrashesOneGroup(t *testing.T) {
	srv, st := newContractServer(t)

	const n = 25
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := jsonReq(t, "POST", srv.URL+"/api/v1/app/crash-reports/create", crashPayload())
			req.RequestURI = ""
			resp, err := srv.Client().Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusCreated, code)
	}
	groups := st.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, n, groups[0].OccurrenceCount)
	assert.Len(t, st.Reports(), n)
}
