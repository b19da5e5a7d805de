package query

import (
	"fmt"
	"math"
	"time"
)

// ParamType enumerates the value types a template parameter may declare.
type ParamType string

const (
	TypeString   ParamType = "string"
	TypeInt      ParamType = "int"
	TypeFloat    ParamType = "float"
	TypeBool     ParamType = "bool"
	TypeEnum     ParamType = "enum"
	TypeDatetime ParamType = "datetime"
)

// ParamSchema declares the accepted shape of one template parameter.
type ParamSchema struct {
	Type     ParamType `yaml:"type"`
	Required bool      `yaml:"required"`
	Enum     []string  `yaml:"enum,omitempty"`
	Min      *float64  `yaml:"min,omitempty"`
	Max      *float64  `yaml:"max,omitempty"`
	MaxLen   int       `yaml:"max_len,omitempty"`
	Default  any       `yaml:"default,omitempty"`
}

// validate checks raw against the schema and returns the coerced value.
// Raw values arrive as decoded JSON, so numbers are float64.
func (s ParamSchema) validate(name string, raw any) (any, error) {
	switch s.Type {
	case TypeString:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string", name)
		}
		if s.MaxLen > 0 && len(v) > s.MaxLen {
			return nil, fmt.Errorf("parameter %q exceeds maximum length %d", name, s.MaxLen)
		}
		return v, nil

	case TypeInt:
		f, ok := toFloat(raw)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("parameter %q must be an integer", name)
		}
		if err := s.checkRange(name, f); err != nil {
			return nil, err
		}
		return int64(f), nil

	case TypeFloat:
		f, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a number", name)
		}
		if err := s.checkRange(name, f); err != nil {
			return nil, err
		}
		return f, nil

	case TypeBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a boolean", name)
		}
		return v, nil

	case TypeEnum:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string", name)
		}
		for _, allowed := range s.Enum {
			if v == allowed {
				return v, nil
			}
		}
		return nil, fmt.Errorf("parameter %q must be one of %v", name, s.Enum)

	case TypeDatetime:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be an RFC3339 timestamp", name)
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q must be an RFC3339 timestamp", name)
		}
		return t, nil

	default:
		return nil, fmt.Errorf("parameter %q has unknown type %q", name, s.Type)
	}
}

func (s ParamSchema) checkRange(name string, f float64) error {
	if s.Min != nil && f < *s.Min {
		return fmt.Errorf("parameter %q is below minimum %v", name, *s.Min)
	}
	if s.Max != nil && f > *s.Max {
		return fmt.Errorf("parameter %q is above maximum %v", name, *s.Max)
	}
	return nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
