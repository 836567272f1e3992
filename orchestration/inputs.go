package orchestration

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/patternflow/core"
)

// coerceInputs validates supplied inputs against a pattern's declarations
// and coerces each to the declared type. Missing required inputs, unknown
// input names, and uncoercible values all reject with InvalidInput.
func coerceInputs(p *Pattern, supplied map[string]interface{}) (map[string]interface{}, error) {
	declared := make(map[string]bool, len(p.Inputs))
	out := make(map[string]interface{}, len(p.Inputs))

	for _, spec := range p.Inputs {
		declared[spec.Name] = true

		value, present := supplied[spec.Name]
		if !present || value == nil {
			if spec.Default != nil {
				value = spec.Default
			} else if spec.Required {
				return nil, inputError(p.ID, fmt.Sprintf("required input %q is missing", spec.Name))
			} else {
				continue
			}
		}

		coerced, err := coerceValue(&spec, value)
		if err != nil {
			return nil, inputError(p.ID, fmt.Sprintf("input %q: %v", spec.Name, err))
		}
		out[spec.Name] = coerced
	}

	for name := range supplied {
		if !declared[name] {
			return nil, inputError(p.ID, fmt.Sprintf("input %q is not declared by the pattern", name))
		}
	}
	return out, nil
}

func coerceValue(spec *InputSpec, value interface{}) (interface{}, error) {
	switch spec.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil

	case "integer":
		switch v := value.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", value)

	case "decimal":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return nil, fmt.Errorf("expected decimal, got %T", value)

	case "boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", value)
		}
		return b, nil

	case "date":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected YYYY-MM-DD date string, got %T", value)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, fmt.Errorf("not a YYYY-MM-DD date: %q", s)
		}
		return s, nil

	case "uuid":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected uuid string, got %T", value)
		}
		parsed, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("not a uuid: %q", s)
		}
		return parsed.String(), nil

	case "enum":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %v, got %T", spec.Values, value)
		}
		for _, allowed := range spec.Values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %v", s, spec.Values)
	}

	return nil, fmt.Errorf("unknown input type %q", spec.Type)
}

func inputError(patternID, msg string) error {
	return &core.Error{
		Kind:      core.KindInvalidInput,
		Op:        "orchestrator.inputs",
		PatternID: patternID,
		Message:   msg,
	}
}
