package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

// Parameter declares a single named argument of a tool.
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Required declares a mandatory parameter.
func Required(name string, paramType ParamType, description string) Parameter {
	return Parameter{Name: name, Type: paramType, Description: description, Required: true}
}

// Optional declares a parameter the model may omit.
func Optional(name string, paramType ParamType, description string) Parameter {
	return Parameter{Name: name, Type: paramType, Description: description}
}

// Handler executes a tool with validated arguments and returns the text that
// is fed back to the model.
type Handler interface {
	Call(ctx context.Context, args Args) (string, error)
}

type HandlerFunc func(ctx context.Context, args Args) (string, error)

func (f HandlerFunc) Call(ctx context.Context, args Args) (string, error) {
	return f(ctx, args)
}

// Tool is a named capability the model may invoke mid-turn.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     Handler

	// Timeout overrides the dispatcher default when positive.
	Timeout time.Duration
}

func NewTool(name, description string, handler HandlerFunc, parameters ...Parameter) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Handler:     handler,
	}
}

func (t Tool) WithTimeout(timeout time.Duration) Tool {
	t.Timeout = timeout
	return t
}

func (t Tool) Spec() Spec {
	return Spec{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  slices.Clone(t.Parameters),
	}
}

func (t Tool) clone() Tool {
	t.Parameters = slices.Clone(t.Parameters)
	return t
}

func (t Tool) validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: tool %q has no handler", ErrInvalidTool, t.Name)
	}
	seen := make(map[string]struct{}, len(t.Parameters))
	for _, parameter := range t.Parameters {
		if parameter.Name == "" {
			return fmt.Errorf("%w: tool %q has an unnamed parameter", ErrInvalidTool, t.Name)
		}
		if !parameter.Type.valid() {
			return fmt.Errorf("%w: parameter %q of tool %q has unsupported type %q", ErrInvalidTool, parameter.Name, t.Name, parameter.Type)
		}
		if _, ok := seen[parameter.Name]; ok {
			return fmt.Errorf("%w: tool %q declares parameter %q twice", ErrInvalidTool, t.Name, parameter.Name)
		}
		seen[parameter.Name] = struct{}{}
	}
	return nil
}

// Args holds validated tool arguments. Numbers are kept as json.Number so
// integers never lose precision.
type Args map[string]any

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a Args) String(name string) string {
	value, _ := a[name].(string)
	return value
}

func (a Args) Int(name string) int64 {
	switch value := a[name].(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		if f, err := value.Float64(); err == nil {
			return int64(f)
		}
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		return int64(value)
	}
	return 0
}

func (a Args) Float(name string) float64 {
	switch value := a[name].(type) {
	case json.Number:
		f, _ := value.Float64()
		return f
	case float64:
		return value
	case int64:
		return float64(value)
	case int:
		return float64(value)
	}
	return 0
}

func (a Args) Bool(name string) bool {
	value, _ := a[name].(bool)
	return value
}

func isIntegral(number json.Number) bool {
	if _, err := number.Int64(); err == nil {
		return true
	}
	f, err := number.Float64()
	if err != nil {
		return false
	}
	return f == math.Trunc(f) && !math.IsInf(f, 0)
}
