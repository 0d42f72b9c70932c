// Package api exposes the Router's HTTP boundary (spec.md §6): POST
// /events, POST /responses, GET /commands, and GET /health, behind the
// fixed parse → authenticate → authorize → validate → handle → serialize
// → log middleware pipeline (spec.md §9's "decorator-stacked endpoints"
// redesign note).
//
// Grounded on the teacher's `pkg/api` (same layering: a Server wrapping
// the HTTP framework's engine, one file per concern), adapted from Echo
// v5 to gin — go.mod already carries `github.com/gin-gonic/gin` as the
// teacher's own HTTP framework dependency for its CLI entrypoint
// (cmd/tarsy/main.go sets gin.Mode), so the API layer is brought onto the
// same framework rather than keeping the teacher's separate Echo
// dependency for one layer and gin for another.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/penguintechinc/waddlebot-core/pkg/errs"
)

// errorEnvelope is the `{success:false, error:{...}}` shape spec.md §7
// mandates for every HTTP-boundary failure.
type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// writeError renders err as the standard envelope with the status code
// pkg/errs.Code maps it to.
func writeError(c *gin.Context, err error) {
	status := errs.Code(err)
	c.JSON(status, errorEnvelope{
		Error: errorBody{
			Message:   err.Error(),
			Code:      codeName(status),
			Timestamp: time.Now(),
		},
	})
}

func codeName(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "policy_denied"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "dependency_unavailable"
	default:
		return "internal_error"
	}
}
