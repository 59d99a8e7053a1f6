package server

import (
	"errors"
	"net/http"

	"github.com/loykin/vitesrv/internal/procedure"
	"github.com/loykin/vitesrv/internal/registry"
	"github.com/loykin/vitesrv/internal/vite"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Issues   []procedure.Issue `json:"issues,omitempty"`
	Code     *int              `json:"code,omitempty"`
	Stderr   string            `json:"stderr,omitempty"`
	ServerID string            `json:"serverId,omitempty"`
	Tail     []string          `json:"tail,omitempty"`
}

// HTTPStatus maps an operation error to its response status.
func HTTPStatus(err error) int {
	var (
		ve *procedure.ValidationError
		ee *registry.ExitedError
		bf *vite.BuildFailedError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, procedure.ErrUnknownProcedure), errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &ee), errors.As(err, &bf):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error()}
	var (
		ve *procedure.ValidationError
		ee *registry.ExitedError
		bf *vite.BuildFailedError
		se *vite.ServerError
	)
	if errors.As(err, &ve) {
		resp.Error = ve.Message
		resp.Issues = ve.Issues
	}
	if errors.As(err, &ee) {
		code := ee.Code
		resp.Code = &code
	}
	if errors.As(err, &bf) {
		code := bf.Code
		resp.Code = &code
		resp.Stderr = bf.Stderr
	}
	if errors.As(err, &se) {
		resp.ServerID = se.ServerID
		resp.Tail = se.Tail
	}
	return resp
}
