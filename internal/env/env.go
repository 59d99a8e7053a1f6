package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes the "KEY=VALUE" overrides handed to spawned tools. Values may
// reference ${VAR} from the base environment or from other overrides.
type Env struct {
	Var Var // overrides (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the expansion base.
func (e *Env) FromOS() {
	e.env = Parse(os.Environ())
}

// Set sets an override K=V. Empty keys are ignored.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetPairs applies "KEY=VALUE" entries in order; later entries win.
func (e *Env) SetPairs(pairs []string) {
	for k, v := range Parse(pairs) {
		e.Set(k, v)
	}
}

// Overrides returns the overrides sorted by key with ${VAR} expanded against
// the base environment overlaid with the overrides themselves (one level, no
// recursion). Unknown references are left as is.
func (e *Env) Overrides() []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		m[k] = v
	}
	keys := make([]string, 0, len(e.Var))
	for k := range e.Var {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(e.Var[k], m))
	}
	return out
}

// Parse splits "KEY=VALUE" entries into a map, skipping malformed ones.
func Parse(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(name string) string {
		if v, ok := m[name]; ok {
			return v
		}
		return "${" + name + "}"
	})
}
