package workflow

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// spec.md §8: "given max_retries=N, the number of HTTP attempts on
// persistent failure is exactly N+1"; end-to-end scenario 6.
// ────────────────────────────────────────────────────────────

func TestExecute_PersistentFailureMakesExactlyMaxRetriesPlusOneAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	node := DefaultWebhookTuning()
	node.URL = srv.URL
	node.MaxRetries = 3
	node.BaseDelay = time.Millisecond
	node.DelayCap = 5 * time.Millisecond

	exec := NewExecutor()
	result, err := exec.Execute(context.Background(), node, Context{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.Equal(t, 4, result.Attempts) // N+1
	assert.Equal(t, int32(4), atomic.LoadInt32(&attempts))
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	node := DefaultWebhookTuning()
	node.URL = srv.URL
	node.MaxRetries = 3
	node.BaseDelay = time.Millisecond
	node.DelayCap = 5 * time.Millisecond

	exec := NewExecutor()
	result, err := exec.Execute(context.Background(), node, Context{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 3, result.Attempts)
}

func TestExecute_DoesNotRetryOtherFourXX(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	node := DefaultWebhookTuning()
	node.URL = srv.URL
	node.MaxRetries = 3
	node.BaseDelay = time.Millisecond

	exec := NewExecutor()
	result, err := exec.Execute(context.Background(), node, Context{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

// ────────────────────────────────────────────────────────────
// Templating, HMAC signing, and response extraction
// ────────────────────────────────────────────────────────────

func TestExecute_SubstitutesAndSignsAndExtracts(t *testing.T) {
	var gotBody []byte
	var gotSig string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":{"id":"abc123","items":[{"name":"first"}]}}`))
	}))
	defer srv.Close()

	node := DefaultWebhookTuning()
	node.URL = srv.URL + "/hooks/${community_id}"
	node.Body = map[string]any{"user": "${user.name}", "total": "$(1 + 2)"}
	node.HMACSecret = "topsecret"
	node.HMACHeader = "X-Signature"
	node.Extractors = map[string]string{
		"result_id":   "result.id",
		"first_item":  "result.items[0].name",
		"missing_one": "result.nope",
	}

	ctx := Context{
		"community_id": "c1",
		"user":         map[string]any{"name": "alice"},
	}

	exec := NewExecutor()
	result, err := exec.Execute(context.Background(), node, ctx)
	require.NoError(t, err)

	require.True(t, result.Success)
	assert.Contains(t, string(gotBody), `"user":"alice"`)
	assert.Contains(t, string(gotBody), `"total":"3"`)
	assert.NotEmpty(t, gotSig)
	_, decodeErr := hex.DecodeString(gotSig)
	assert.NoError(t, decodeErr)

	assert.Equal(t, "abc123", result.ExtractedVariables["result_id"])
	assert.Equal(t, "first", result.ExtractedVariables["first_item"])
	assert.Nil(t, result.ExtractedVariables["missing_one"])
}

// ────────────────────────────────────────────────────────────
// Extract-then-template: an extracted value may itself contain ${...}
// lookups against the same response body, resolved as a second pass.
// ────────────────────────────────────────────────────────────

func TestExecute_ExtractorValueGetsSecondSubstitutionPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"greeting":"hello ${user.name}","user":{"name":"alice"}}`))
	}))
	defer srv.Close()

	node := DefaultWebhookTuning()
	node.URL = srv.URL
	node.Extractors = map[string]string{"message": "greeting"}

	exec := NewExecutor()
	result, err := exec.Execute(context.Background(), node, Context{})
	require.NoError(t, err)

	require.True(t, result.Success)
	assert.Equal(t, "hello alice", result.ExtractedVariables["message"])
}

// ────────────────────────────────────────────────────────────
// Template substitution unit tests
// ────────────────────────────────────────────────────────────

func TestSubstitute_DottedPath(t *testing.T) {
	ctx := Context{"user": map[string]any{"name": "bob"}}
	out := Substitute("hello ${user.name}", ctx)
	assert.Equal(t, "hello bob", out)
}

func TestSubstitute_ArithmeticExpression(t *testing.T) {
	out := Substitute("total: $(2 + 3)", Context{})
	assert.Equal(t, "total: 5", out)
}

func TestSubstitute_ComparisonExpression(t *testing.T) {
	out := Substitute("is_high: $(10 > 5)", Context{})
	assert.Equal(t, "is_high: true", out)
}

func TestSubstitute_LeavesUnresolvedPathsAlone(t *testing.T) {
	out := Substitute("hello ${missing.path}", Context{})
	assert.Equal(t, "hello ${missing.path}", out)
}
