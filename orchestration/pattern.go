package orchestration

import (
	"fmt"
	"strings"

	"github.com/halcyonlabs/patternflow/core"
)

// InputSpec declares one pattern input. Type is one of string, integer,
// date, uuid, boolean, decimal, enum; enum inputs carry the allowed values.
type InputSpec struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
	Values   []string    `json:"values,omitempty"`
	Describe string      `json:"description,omitempty"`
}

// Step is one capability invocation within a pattern.
type Step struct {
	Name          string                 `json:"name"`
	Capability    string                 `json:"capability"`
	Args          map[string]interface{} `json:"args,omitempty"`
	SaveAs        string                 `json:"save_as,omitempty"`
	Condition     string                 `json:"condition,omitempty"`
	Fallback      interface{}            `json:"fallback,omitempty"`
	TTLSeconds    *int                   `json:"ttl,omitempty"`
	ParallelGroup string                 `json:"parallel_group,omitempty"`
	Optional      bool                   `json:"optional,omitempty"`
}

// StateKey is the execution-state key this step writes: save_as when
// declared, the step name otherwise.
func (s *Step) StateKey() string {
	if s.SaveAs != "" {
		return s.SaveAs
	}
	return s.Name
}

// Pattern is an immutable declarative workflow document.
type Pattern struct {
	ID             string                 `json:"id"`
	Version        string                 `json:"version"`
	Category       string                 `json:"category,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Inputs         []InputSpec            `json:"inputs"`
	Outputs        map[string]interface{} `json:"outputs"`
	Steps          []Step                 `json:"steps"`
	RightsRequired []string               `json:"rights_required,omitempty"`
	Display        map[string]interface{} `json:"display,omitempty"`
}

var inputTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"date":    true,
	"uuid":    true,
	"boolean": true,
	"decimal": true,
	"enum":    true,
}

// CapabilityChecker answers whether a capability name is registered. The
// loader validates every step's capability against it at load time.
type CapabilityChecker interface {
	Has(capability string) bool
}

// Validate enforces the load-time invariants of a pattern document beyond
// what the JSON schema expresses: step count limit, unique names and state
// keys, forward-only template references, no references across a parallel
// group, contiguous groups, and resolvable capabilities. Errors identify the
// pattern and the offending field.
func (p *Pattern) Validate(maxSteps int, caps CapabilityChecker) error {
	if p.ID == "" {
		return p.invalid("", "pattern id is empty")
	}
	if p.Version == "" {
		return p.invalid("", "pattern version is empty")
	}
	if len(p.Steps) > maxSteps {
		return p.invalid("", fmt.Sprintf("%d steps exceeds the limit of %d", len(p.Steps), maxSteps))
	}

	for _, in := range p.Inputs {
		if in.Name == "" {
			return p.invalid("", "input with empty name")
		}
		if !inputTypes[in.Type] {
			return p.invalid("", fmt.Sprintf("input %q has unknown type %q", in.Name, in.Type))
		}
		if in.Type == "enum" && len(in.Values) == 0 {
			return p.invalid("", fmt.Sprintf("enum input %q declares no values", in.Name))
		}
	}

	names := make(map[string]bool, len(p.Steps))
	// keyIndex maps each state key to the index of the step that writes it.
	keyIndex := make(map[string]int, len(p.Steps))
	keyGroup := make(map[string]string, len(p.Steps))
	closedGroups := make(map[string]bool)
	prevGroup := ""

	for i, step := range p.Steps {
		if step.Name == "" {
			return p.invalid("", fmt.Sprintf("step %d has no name", i))
		}
		if names[step.Name] {
			return p.invalid(step.Name, "duplicate step name")
		}
		names[step.Name] = true

		if step.Capability == "" {
			return p.invalid(step.Name, "step has no capability")
		}
		if caps != nil && !caps.Has(step.Capability) {
			return p.invalid(step.Name, fmt.Sprintf("capability %q is not registered", step.Capability))
		}

		key := step.StateKey()
		if _, dup := keyIndex[key]; dup {
			return p.invalid(step.Name, fmt.Sprintf("state key %q already written by an earlier step", key))
		}

		// Parallel groups must be contiguous in declaration order; a group
		// that ends cannot reopen later.
		if step.ParallelGroup != prevGroup {
			if prevGroup != "" {
				closedGroups[prevGroup] = true
			}
			if step.ParallelGroup != "" && closedGroups[step.ParallelGroup] {
				return p.invalid(step.Name, fmt.Sprintf("parallel group %q is not contiguous", step.ParallelGroup))
			}
			prevGroup = step.ParallelGroup
		}

		refs := templateRefs(step.Args)
		if step.Condition != "" {
			refs = append(refs, templateRefs(step.Condition)...)
		}
		for _, ref := range refs {
			if err := p.checkRef(ref, step, keyIndex, keyGroup); err != nil {
				return err
			}
		}

		keyIndex[key] = i
		keyGroup[key] = step.ParallelGroup
	}

	for name, tmpl := range p.Outputs {
		for _, ref := range templateRefs(tmpl) {
			root := strings.SplitN(ref, ".", 2)[0]
			if root == "inputs" || root == "ctx" {
				continue
			}
			key := root
			if root == "state" {
				parts := strings.SplitN(ref, ".", 3)
				if len(parts) < 2 {
					return p.invalid("", fmt.Sprintf("output %q references bare state", name))
				}
				key = parts[1]
			}
			if _, ok := keyIndex[key]; !ok {
				return p.invalid("", fmt.Sprintf("output %q references unknown state key %q", name, key))
			}
		}
	}

	return nil
}

// checkRef validates one template reference in a step against the steps
// declared so far. References must point at inputs, ctx, or a state key
// written strictly earlier; references between members of the same parallel
// group are rejected because group members run concurrently.
func (p *Pattern) checkRef(ref string, step Step, keyIndex map[string]int, keyGroup map[string]string) error {
	root := strings.SplitN(ref, ".", 2)[0]
	if root == "inputs" || root == "ctx" {
		return nil
	}

	key := root
	if root == "state" {
		parts := strings.SplitN(ref, ".", 3)
		if len(parts) < 2 {
			return p.invalid(step.Name, "reference to bare state")
		}
		key = parts[1]
	}

	if _, ok := keyIndex[key]; !ok {
		return p.invalid(step.Name,
			fmt.Sprintf("reference %q does not resolve to inputs, ctx, or an earlier step", ref))
	}
	if step.ParallelGroup != "" && keyGroup[key] == step.ParallelGroup {
		return p.invalid(step.Name,
			fmt.Sprintf("reference %q crosses parallel group %q", ref, step.ParallelGroup))
	}
	return nil
}

func (p *Pattern) invalid(step, msg string) error {
	return &core.Error{
		Kind:      core.KindValidationFailure,
		Op:        "pattern.validate",
		PatternID: p.ID,
		Step:      step,
		Message:   msg,
	}
}
