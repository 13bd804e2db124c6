// Package resolve implements step input binding: declared inputs are bound
// against current chain state, producing concrete arguments for an operation
// call. Resolution is purely key substitution, with no expressions, arithmetic,
// or control flow.
package resolve

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chainrun/chainrun/internal/state"
)

// statePrefix marks an input value as a reference into chain state.
const statePrefix = "state."

type undefined struct{}

func (undefined) String() string { return "<undefined>" }

func (undefined) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Undefined is the marker passed through to an operation when a referenced
// state key is absent. The engine does not fail on missing keys; whether an
// operation tolerates them is a contract matter between chain author and
// operation.
var Undefined = undefined{}

// IsUndefined reports whether a resolved value is the missing-key marker.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Resolver binds declared step inputs against chain state.
type Resolver struct{}

// New creates a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve produces the concrete argument map for one operation call. For
// each declared input: a `state.<key>` reference (dotted paths traverse
// nested maps) substitutes the current state value, a bare key matching a
// top-level state entry substitutes likewise, `${{ ... }}` tokens inside
// string literals are spliced in place, and everything else passes through
// unchanged. Missing keys resolve to Undefined.
func (r *Resolver) Resolve(inputs map[string]any, st *state.State) map[string]any {
	args := make(map[string]any, len(inputs))
	for name, binding := range inputs {
		args[name] = r.resolveValue(binding, st)
	}
	return args
}

func (r *Resolver) resolveValue(v any, st *state.State) any {
	switch val := v.(type) {
	case string:
		return r.resolveString(val, st)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = r.resolveValue(nested, st)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, nested := range val {
			out[i] = r.resolveValue(nested, st)
		}
		return out
	default:
		return v
	}
}

func (r *Resolver) resolveString(s string, st *state.State) any {
	// Interpolation tokens take precedence: a string containing ${{ ... }}
	// is spliced, and a string that is exactly one token yields the typed
	// value rather than its string form.
	if strings.Contains(s, "${{") {
		return r.interpolate(s, st)
	}

	// state.<path> reference.
	if path, ok := strings.CutPrefix(s, statePrefix); ok && path != "" {
		v, found := st.Lookup(path)
		if !found {
			return Undefined
		}
		return v
	}

	// Bare key checked against top-level state.
	if v, ok := st.Get(s); ok {
		return v
	}

	return s
}

// interpolate resolves ${{ ... }} tokens inside a string. Token expressions
// are the same reference forms as whole-value bindings: `state.<path>` or a
// bare state key. Unclosed or empty tokens are left verbatim.
func (r *Resolver) interpolate(input string, st *state.State) any {
	var result strings.Builder
	result.Grow(len(input))

	spliced := false
	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + 3

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			result.WriteString(input[i+idx:])
			break
		}
		end += start

		expr := strings.TrimSpace(input[start:end])
		if expr == "" {
			result.WriteString(input[i+idx : end+2])
			i = end + 2
			continue
		}

		val := r.lookupExpr(expr, st)

		// A string that is exactly one token returns the typed value.
		if i+idx == 0 && end+2 == len(input) {
			return val
		}

		result.WriteString(stringify(val))
		spliced = true
		i = end + 2
	}

	if !spliced && result.Len() == 0 {
		return input
	}
	return result.String()
}

func (r *Resolver) lookupExpr(expr string, st *state.State) any {
	if path, ok := strings.CutPrefix(expr, statePrefix); ok && path != "" {
		if v, found := st.Lookup(path); found {
			return v
		}
		return Undefined
	}
	if v, ok := st.Lookup(expr); ok {
		return v
	}
	return Undefined
}

// stringify renders a resolved value for splicing into a larger string.
// Strings embed without quotes; composite values use their JSON form.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case undefined:
		return val.String()
	case nil:
		return "null"
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
