package workflow

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// HMACAlgorithm selects the digest used to sign the serialized body.
type HMACAlgorithm string

const (
	HMACSHA256 HMACAlgorithm = "sha256"
	HMACSHA512 HMACAlgorithm = "sha512"
	HMACSHA1   HMACAlgorithm = "sha1"
)

// WebhookNode is a webhook node's fully-resolved configuration (spec.md §4.6).
type WebhookNode struct {
	URL         string
	Method      string // GET, POST, PUT, DELETE
	Headers     map[string]string
	Body        map[string]any
	HMACSecret  string
	HMACHeader  string
	HMACAlgo    HMACAlgorithm
	Timeout     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	DelayCap    time.Duration
	BackoffMult float64
	Extractors  map[string]string // variable_name -> path
}

// DefaultWebhookTuning matches spec.md §4.6 step 5's documented defaults.
func DefaultWebhookTuning() WebhookNode {
	return WebhookNode{
		Method:      http.MethodPost,
		HMACAlgo:    HMACSHA256,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BaseDelay:   time.Second,
		DelayCap:    60 * time.Second,
		BackoffMult: 2,
	}
}

// ExecutionResult is execute()'s return shape (spec.md §4.6).
type ExecutionResult struct {
	Success            bool
	StatusCode         int
	ResponseBody       any
	ExtractedVariables map[string]any
	Error              string
	ErrorKind          string // timeout | retryable-http | non-retryable | transport
	ExecutionTime       time.Duration
	Attempts            int
}

var retryableStatus = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// Executor runs webhook nodes against an injectable HTTP client, so tests
// can substitute a local server or a stub transport.
type Executor struct {
	Client *http.Client
}

// NewExecutor builds an Executor with a default HTTP client.
func NewExecutor() *Executor {
	return &Executor{Client: &http.Client{}}
}

// Execute implements the one public operation in spec.md §4.6: substitute →
// serialize → sign → request (with retry) → parse → extract.
func (e *Executor) Execute(ctx context.Context, node WebhookNode, tmplCtx Context) (ExecutionResult, error) {
	start := time.Now()

	url := Substitute(node.URL, tmplCtx)
	headers := make(map[string]string, len(node.Headers))
	for k, v := range node.Headers {
		headers[k] = Substitute(v, tmplCtx)
	}
	body := substituteBody(node.Body, tmplCtx)

	serialized, err := canonicalJSON(body)
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error(), ErrorKind: "non-retryable"}, fmt.Errorf("workflow: serialize body: %w", err)
	}

	if node.HMACSecret != "" {
		sig, err := signHMAC(node.HMACAlgo, node.HMACSecret, serialized)
		if err != nil {
			return ExecutionResult{Success: false, Error: err.Error(), ErrorKind: "non-retryable"}, err
		}
		if headers == nil {
			headers = make(map[string]string)
		}
		headers[node.HMACHeader] = sig
	}

	result := e.requestWithRetry(ctx, node, url, headers, serialized)
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (e *Executor) requestWithRetry(ctx context.Context, node WebhookNode, url string, headers map[string]string, body []byte) ExecutionResult {
	delay := node.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	delayCap := node.DelayCap
	if delayCap <= 0 {
		delayCap = 60 * time.Second
	}
	mult := node.BackoffMult
	if mult <= 0 {
		mult = 2
	}
	maxRetries := node.MaxRetries

	var lastResult ExecutionResult
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, retryable := e.attempt(ctx, node, url, headers, body)
		result.Attempts = attempt + 1
		lastResult = result

		if result.Success || !retryable || attempt == maxRetries {
			return result
		}

		select {
		case <-ctx.Done():
			lastResult.Error = ctx.Err().Error()
			lastResult.ErrorKind = "timeout"
			return lastResult
		case <-time.After(delay):
		}
		delay = time.Duration(math.Min(float64(delayCap), float64(delay)*mult))
	}
	return lastResult
}

func (e *Executor) attempt(ctx context.Context, node WebhookNode, url string, headers map[string]string, body []byte) (ExecutionResult, bool) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if node.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, node.Timeout)
		defer cancel()
	}

	method := node.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewReader(body))
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error(), ErrorKind: "non-retryable"}, false
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return ExecutionResult{Success: false, Error: err.Error(), ErrorKind: "timeout"}, true
		}
		return ExecutionResult{Success: false, Error: err.Error(), ErrorKind: "transport"}, true
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExecutionResult{Success: false, StatusCode: resp.StatusCode, Error: err.Error(), ErrorKind: "transport"}, true
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := retryableStatus[resp.StatusCode]
		kind := "non-retryable"
		if retryable {
			kind = "retryable-http"
		}
		return ExecutionResult{
			Success:    false,
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("unexpected status %d", resp.StatusCode),
			ErrorKind:  kind,
		}, retryable
	}

	var parsed any
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = string(raw)
		}
	} else {
		parsed = string(raw)
	}

	extracted := extractVariables(raw, node.Extractors)

	return ExecutionResult{
		Success:             true,
		StatusCode:          resp.StatusCode,
		ResponseBody:        parsed,
		ExtractedVariables:  extracted,
	}, false
}

// extractVariables resolves each extractor's path against the response body,
// then runs a second substitution pass over any string result: an extractor
// value may itself contain further ${...} lookups against the same response
// body (extract-then-template), so a path like "message" that resolves to
// "hello ${user.name}" gets user.name filled in from the same document.
func extractVariables(raw []byte, extractors map[string]string) map[string]any {
	if len(extractors) == 0 {
		return nil
	}
	out := make(map[string]any, len(extractors))
	doc := string(raw)

	var parsed map[string]any
	_ = json.Unmarshal(raw, &parsed)
	responseCtx := Context(parsed)

	for name, path := range extractors {
		val := ExtractPath(doc, path)
		if s, ok := val.(string); ok {
			val = Substitute(s, responseCtx)
		}
		out[name] = val
	}
	return out
}

func substituteBody(body map[string]any, ctx Context) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = substituteValue(v, ctx)
	}
	return out
}

func substituteValue(v any, ctx Context) any {
	switch val := v.(type) {
	case string:
		return Substitute(val, ctx)
	case map[string]any:
		return substituteBody(val, ctx)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, ctx)
		}
		return out
	default:
		return val
	}
}

// canonicalJSON serializes v with compact separators (spec.md §4.6 step 2).
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func signHMAC(algo HMACAlgorithm, secret string, body []byte) (string, error) {
	var h func() hash.Hash
	switch algo {
	case HMACSHA256, "":
		h = sha256.New
	case HMACSHA512:
		h = sha512.New
	case HMACSHA1:
		h = sha1.New
	default:
		return "", fmt.Errorf("workflow: unsupported hmac algorithm %q", algo)
	}
	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
