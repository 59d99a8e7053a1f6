package procedure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Meta describes a procedure for CLI and API consumers.
type Meta struct {
	Description string `json:"description"`
	// Args lists input fields that a CLI passes positionally.
	Args []string `json:"args"`
	// Shorts maps input fields to single-letter CLI flags.
	Shorts map[string]string `json:"shorts"`
	Output string            `json:"output"`
}

// Handler receives the raw JSON input of a call.
type Handler func(ctx context.Context, raw json.RawMessage) (any, error)

// Procedure is one entry of a Dispatcher table.
type Procedure struct {
	Path    []string
	Meta    Meta
	Handler Handler
}

// Name joins the path with dots, e.g. "vite.dev".
func (p Procedure) Name() string { return strings.Join(p.Path, ".") }

// Info is the serializable description returned by Dispatcher.List.
type Info struct {
	Name string   `json:"name"`
	Path []string `json:"path"`
	Meta Meta     `json:"meta"`
}

// New adapts a typed function into a Procedure. The raw input is decoded into
// In and checked against its `validate` struct tags before fn is called;
// decoding and validation failures surface as *ValidationError. Unknown JSON
// fields are ignored.
func New[In, Out any](path []string, meta Meta, fn func(context.Context, In) (Out, error)) Procedure {
	return Procedure{
		Path: append([]string(nil), path...),
		Meta: meta,
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in In
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			if err := validateInput(in); err != nil {
				return nil, err
			}
			return fn(ctx, in)
		},
	}
}

func decode(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	err := json.Unmarshal(raw, dst)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{
			Message: "invalid input",
			Issues: []Issue{{
				Path:    typeErr.Field,
				Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			}},
		}
	}
	return &ValidationError{
		Message: "invalid input",
		Issues:  []Issue{{Message: err.Error()}},
	}
}
