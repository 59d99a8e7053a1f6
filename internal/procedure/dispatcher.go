package procedure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/loykin/vitesrv/internal/metrics"
)

// ErrUnknownProcedure is returned by Call for names that were never registered.
var ErrUnknownProcedure = errors.New("unknown procedure")

// Dispatcher is a name-keyed table of procedures. It is safe for concurrent use.
type Dispatcher struct {
	mu    sync.RWMutex
	procs map[string]Procedure
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{procs: make(map[string]Procedure)}
}

// Register adds procs to the table. A duplicate or empty path is an error and
// leaves the table unchanged.
func (d *Dispatcher) Register(procs ...Procedure) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]bool, len(procs))
	for _, p := range procs {
		name := p.Name()
		if len(p.Path) == 0 || name == "" {
			return errors.New("procedure path is empty")
		}
		if p.Handler == nil {
			return fmt.Errorf("procedure %q has no handler", name)
		}
		if _, ok := d.procs[name]; ok || seen[name] {
			return fmt.Errorf("procedure %q already registered", name)
		}
		seen[name] = true
	}
	for _, p := range procs {
		d.procs[p.Name()] = p
	}
	return nil
}

func (d *Dispatcher) Lookup(name string) (Procedure, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.procs[name]
	return p, ok
}

// List returns the registered procedures sorted by name.
func (d *Dispatcher) List() []Info {
	d.mu.RLock()
	out := make([]Info, 0, len(d.procs))
	for name, p := range d.procs {
		out = append(out, Info{Name: name, Path: append([]string(nil), p.Path...), Meta: p.Meta})
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs the named procedure with raw JSON input.
func (d *Dispatcher) Call(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	p, ok := d.Lookup(name)
	if !ok {
		metrics.IncProcedureCall("", "unknown")
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, name)
	}
	out, err := p.Handler(ctx, raw)
	var ve *ValidationError
	switch {
	case err == nil:
		metrics.IncProcedureCall(name, "ok")
	case errors.As(err, &ve):
		metrics.IncProcedureCall(name, "invalid")
	default:
		metrics.IncProcedureCall(name, "error")
	}
	return out, err
}
