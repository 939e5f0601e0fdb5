package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

// Spec is the handler-free declaration of a tool that is exported to the
// realtime model.
type Spec struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// JSONSchema renders the parameters as a JSON Schema object with properties in
// declaration order.
func (s Spec) JSONSchema() *jsonschema.Schema {
	properties := jsonschema.NewProperties()
	required := []string{}
	for _, parameter := range s.Parameters {
		properties.Set(parameter.Name, &jsonschema.Schema{
			Type:        string(parameter.Type),
			Description: parameter.Description,
		})
		if parameter.Required {
			required = append(required, parameter.Name)
		}
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// parseArgs decodes raw model arguments and validates them against the tool's
// parameters. Declared parameters are checked in order before any unexpected
// argument is reported, so the first offending field is deterministic.
func parseArgs(tool Tool, raw json.RawMessage) (Args, error) {
	args := Args{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.UseNumber()
		if err := decoder.Decode(&args); err != nil {
			return nil, &InvalidArgumentsError{Tool: tool.Name, Reason: fmt.Sprintf("arguments are not a JSON object: %v", err)}
		}
		if decoder.More() {
			return nil, &InvalidArgumentsError{Tool: tool.Name, Reason: "arguments contain trailing data"}
		}
	}

	declared := make(map[string]struct{}, len(tool.Parameters))
	for _, parameter := range tool.Parameters {
		declared[parameter.Name] = struct{}{}
		value, ok := args[parameter.Name]
		if !ok || value == nil {
			if parameter.Required {
				return nil, &InvalidArgumentsError{Tool: tool.Name, Field: parameter.Name, Reason: "missing required argument"}
			}
			delete(args, parameter.Name)
			continue
		}
		if !matchesType(parameter.Type, value) {
			return nil, &InvalidArgumentsError{Tool: tool.Name, Field: parameter.Name, Reason: fmt.Sprintf("expected %s", parameter.Type)}
		}
	}

	unexpected := []string{}
	for name := range args {
		if _, ok := declared[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		slices.Sort(unexpected)
		return nil, &InvalidArgumentsError{Tool: tool.Name, Field: unexpected[0], Reason: "unexpected argument"}
	}

	return args, nil
}

func matchesType(paramType ParamType, value any) bool {
	switch paramType {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		_, ok := value.(json.Number)
		return ok
	case TypeInteger:
		number, ok := value.(json.Number)
		return ok && isIntegral(number)
	}
	return false
}
