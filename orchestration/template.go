// Package orchestration contains the pattern execution engine: the pattern
// model and loader, the template resolver, the agent runtime with its
// resilience policies, the execution cache, and the orchestrator that drives
// a pattern's steps against the capability registry.
package orchestration

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/halcyonlabs/patternflow/core"
)

// templateRe matches one {{path}} reference. Whitespace inside the braces is
// ignored; the path is a dotted sequence of identifiers.
var templateRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// wholeTemplateRe matches a string that is exactly one template and nothing
// else. Such values resolve to their native type instead of a string.
var wholeTemplateRe = regexp.MustCompile(`^\s*\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}\s*$`)

// requiredContextPaths is the set of template paths that must never resolve
// to null. A null here fails the request before any step runs.
var requiredContextPaths = map[string]bool{
	"ctx.pricing_pack_id":    true,
	"ctx.ledger_commit_hash": true,
}

// NewTemplateRoot builds the single root mapping templates resolve against.
// Step references resolve through the state entry: {{s1.v}} and
// {{state.s1.v}} are equivalent.
func NewTemplateRoot(inputs map[string]interface{}, rc *core.RequestContext, state map[string]interface{}) map[string]interface{} {
	var ctxMap map[string]interface{}
	if rc != nil {
		ctxMap = rc.TemplateMap()
	}
	return map[string]interface{}{
		"inputs": inputs,
		"ctx":    ctxMap,
		"state":  state,
	}
}

// ResolveValue substitutes every {{path}} reference in value against root.
// A value that is entirely one template keeps the resolved value's native
// type; a template embedded in a larger string coerces to its string form.
// Maps and slices resolve recursively. Missing paths resolve to nil except
// for the required-context set, which fails with RequiredContextMissing.
//
// The resolver performs path lookup only. No arithmetic, no calls, no
// conditionals; anything more complex belongs inside an agent.
func ResolveValue(value interface{}, root map[string]interface{}) (interface{}, error) {
	return resolveValue(value, root, true)
}

// ResolveLenient is ResolveValue without the required-context enforcement.
// Used for output projection, where missing values project as null.
func ResolveLenient(value interface{}, root map[string]interface{}) (interface{}, error) {
	return resolveValue(value, root, false)
}

func resolveValue(value interface{}, root map[string]interface{}, strict bool) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, root, strict)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			resolved, err := resolveValue(item, root, strict)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := resolveValue(item, root, strict)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		// Literals pass through untouched.
		return value, nil
	}
}

func resolveString(s string, root map[string]interface{}, strict bool) (interface{}, error) {
	if m := wholeTemplateRe.FindStringSubmatch(s); m != nil {
		return lookupPath(m[1], root, strict)
	}

	var firstErr error
	replaced := templateRe.ReplaceAllStringFunc(s, func(match string) string {
		path := templateRe.FindStringSubmatch(match)[1]
		resolved, err := lookupPath(path, root, strict)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return stringify(resolved)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return replaced, nil
}

// lookupPath walks a dotted path against root. The first segment selects the
// inputs/ctx/state subtree; a bare step name is shorthand for state.<name>.
func lookupPath(path string, root map[string]interface{}, strict bool) (interface{}, error) {
	segments := strings.Split(path, ".")

	var current interface{}
	switch segments[0] {
	case "inputs", "ctx", "state":
		current = root[segments[0]]
		segments = segments[1:]
	default:
		state, _ := root["state"].(map[string]interface{})
		current = state
	}

	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			current = nil
			break
		}
		current = m[seg]
	}

	if current == nil && strict && requiredContextPaths[path] {
		return nil, &core.Error{
			Kind:    core.KindRequiredContextMissing,
			Op:      "template.resolve",
			Message: fmt.Sprintf("required context path %q resolved to null", path),
		}
	}
	return current, nil
}

// Truthy coerces a resolved condition value to boolean. Null, false, zero,
// the empty string, and the string "false" are false; everything else is
// true.
func Truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != "" && !strings.EqualFold(val, "false")
	default:
		return true
	}
}

// stringify renders a resolved value for embedding inside a larger string.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// templateRefs collects every template path referenced anywhere in value.
// The loader uses this for static validation.
func templateRefs(value interface{}) []string {
	var refs []string
	collectRefs(value, &refs)
	return refs
}

func collectRefs(value interface{}, refs *[]string) {
	switch v := value.(type) {
	case string:
		for _, m := range templateRe.FindAllStringSubmatch(v, -1) {
			*refs = append(*refs, m[1])
		}
	case map[string]interface{}:
		for _, item := range v {
			collectRefs(item, refs)
		}
	case []interface{}:
		for _, item := range v {
			collectRefs(item, refs)
		}
	}
}
