package env

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/tally/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Resolver interpolates {{name}} placeholders. Names resolve against values
// recorded from earlier tests first, then suite variables. {{$NAME}} reads
// the process environment and {{name(args)}} calls a builtin function.
// Unknown placeholders are left as written.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]string
	captures  map[string]string
	funcs     *builtin.Registry
	logger    *slog.Logger
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]string),
		captures:  make(map[string]string),
		funcs:     builtin.NewRegistry(),
		logger:    slog.Default(),
	}
}

// SetLogger sets where unresolved placeholders are reported.
func (r *Resolver) SetLogger(l *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

func (r *Resolver) SetVariables(vars map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

// SetCapture records a value produced by a test, addressable as
// {{test.name}}.
func (r *Resolver) SetCapture(testName, name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[testName+"."+name] = value
}

func (r *Resolver) GetCapture(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.captures[name]
	return v, ok
}

func (r *Resolver) lookup(expr string) (string, bool) {
	if strings.HasPrefix(expr, "$") {
		return os.LookupEnv(expr[1:])
	}
	if builtin.IsCall(expr) {
		return r.call(expr)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.captures[expr]; ok {
		return v, true
	}
	v, ok := r.variables[expr]
	return v, ok
}

func (r *Resolver) call(expr string) (string, bool) {
	v, ok, err := r.funcs.Call(expr)
	if err != nil {
		r.mu.RLock()
		logger := r.logger
		r.mu.RUnlock()
		logger.Warn("builtin function failed", "call", expr, "err", err)
		return "", false
	}
	return v, ok
}

func (r *Resolver) Resolve(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := r.lookup(expr); ok {
			return v
		}
		r.mu.RLock()
		logger := r.logger
		r.mu.RUnlock()
		logger.Warn("unresolved variable", "name", expr)
		return match
	})
}

func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

// UnresolvedVariables lists the placeholders in input that have no value.
func (r *Resolver) UnresolvedVariables(input string) []string {
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(m[1])
		if _, ok := r.lookup(expr); !ok {
			names = append(names, expr)
		}
	}
	return names
}

func (r *Resolver) HasVariable(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

func (r *Resolver) Clone() *Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewResolver()
	clone.logger = r.logger
	clone.funcs = r.funcs
	for k, v := range r.variables {
		clone.variables[k] = v
	}
	for k, v := range r.captures {
		clone.captures[k] = v
	}
	return clone
}
