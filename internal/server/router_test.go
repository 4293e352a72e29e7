package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/adis/internal/dispatch"
	"github.com/isometry/adis/internal/metrics"
)

const testKey = "test-api-key"

// fakeExecutor records requests and returns a fixed result.
type fakeExecutor struct {
	calls    []dispatch.Request
	envelope dispatch.Envelope
	err      error
	panics   bool
}

func (f *fakeExecutor) Execute(_ context.Context, req dispatch.Request) (dispatch.Envelope, error) {
	if f.panics {
		panic("executor exploded")
	}
	f.calls = append(f.calls, req)
	return f.envelope, f.err
}

func newTestRouter(exec Executor) http.Handler {
	return NewRouter(RouterOptions{
		Executor: exec,
		APIKey:   testKey,
		Version:  "1.2.3",
		Metrics:  metrics.New().Handler(),
		Now: func() time.Time {
			return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
		},
	})
}

func post(t *testing.T, handler http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeExecutor{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2026-10-16T12:00:00Z","version":"1.2.3"}`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeExecutor{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestExecute_APIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "missing", key: ""},
		{name: "wrong", key: "nope"},
		{name: "prefix", key: testKey[:4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			rec := post(t, newTestRouter(exec), tt.key, `{"method":"list_groups_by_ou","parameters":{}}`)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, "invalid or missing API key", body["errorText"])
			assert.Empty(t, exec.calls)
		})
	}

	t.Run("empty configured key rejects everything", func(t *testing.T) {
		exec := &fakeExecutor{}
		handler := NewRouter(RouterOptions{Executor: exec})

		rec := post(t, handler, "", `{"method":"list_groups_by_ou","parameters":{}}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, exec.calls)
	})
}

func TestExecute_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{"method":`},
		{name: "unknown top-level field", body: `{"method":"list_groups_by_ou","parameters":{},"extra":1}`},
		{name: "wrong method type", body: `{"method":5,"parameters":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			rec := post(t, newTestRouter(exec), testKey, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Contains(t, body["errorText"], "malformed request body")
			assert.Empty(t, exec.calls)
		})
	}
}

func TestExecute_PassesRequestThrough(t *testing.T) {
	groups := []map[string]any{{"cn": "App-Readers"}}
	exec := &fakeExecutor{envelope: dispatch.Envelope{Data: map[string]any{"groups": groups}}}

	rec := post(t, newTestRouter(exec), testKey,
		`{"method":"list_groups_by_ou","parameters":{"ou_dn":"OU=Groups,DC=corp,DC=example","domain":"dc1.corp.example"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"groups":[{"cn":"App-Readers"}]},"errorText":null}`, rec.Body.String())

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "list_groups_by_ou", exec.calls[0].Method)
	assert.JSONEq(t, `{"ou_dn":"OU=Groups,DC=corp,DC=example","domain":"dc1.corp.example"}`, string(exec.calls[0].Parameters))
}

func TestExecute_StatusMapping(t *testing.T) {
	tests := []struct {
		kind dispatch.ErrorKind
		want int
	}{
		{kind: dispatch.KindValidation, want: http.StatusUnprocessableEntity},
		{kind: dispatch.KindConfiguration, want: http.StatusInternalServerError},
		{kind: dispatch.KindConnection, want: http.StatusBadGateway},
		{kind: dispatch.KindOperation, want: http.StatusInternalServerError},
		{kind: dispatch.KindNotFound, want: http.StatusInternalServerError},
		{kind: dispatch.KindInternal, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			text := "failure text"
			exec := &fakeExecutor{
				envelope: dispatch.Envelope{ErrorText: &text},
				err:      &dispatch.Error{Kind: tt.kind, Message: text},
			}

			rec := post(t, newTestRouter(exec), testKey, `{"method":"list_groups_by_ou","parameters":{}}`)

			assert.Equal(t, tt.want, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, text, body["errorText"])
			assert.Nil(t, body["data"])
		})
	}

	t.Run("untyped error", func(t *testing.T) {
		exec := &fakeExecutor{err: errors.New("boom")}
		rec := post(t, newTestRouter(exec), testKey, `{"method":"list_groups_by_ou","parameters":{}}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestExecute_RecoversFromPanic(t *testing.T) {
	rec := post(t, newTestRouter(&fakeExecutor{panics: true}), testKey, `{"method":"list_groups_by_ou","parameters":{}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, newTestRouter(&fakeExecutor{}))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
