package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	language "github.com/hanpama/stitchgraph/internal/language"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// coercer turns variables and arguments into the values resolvers receive:
// int, float64, string, bool, []any and map[string]any. Enum values stay
// strings and custom scalars pass through untouched, since a remote service
// owns their meaning.
type coercer struct {
	schema *schema.Schema
}

// variables coerces the request variables against the operation's
// definitions. Missing nullable variables without default stay absent.
func (c coercer) variables(operation *language.OperationDefinition, values map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		name, t := def.Variable, def.Type
		val, ok := lookupVariable(values, name)
		switch {
		case ok:
		case def.DefaultValue != nil:
			val = resolveLiteral(def.DefaultValue, nil)
		case t.NonNull:
			return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t.String())
		default:
			continue
		}
		if val == nil && t.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, t.String())
		}
		cv, err := c.value(val, schema.TypeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// arguments coerces the arguments of one field. Problems are recorded on
// state and the offending argument is left out.
func (c coercer) arguments(state *executionState, def *schema.Field, args language.ArgumentList, path Path) map[string]any {
	coerced := make(map[string]any, len(def.Arguments))
	for _, argDef := range def.Arguments {
		name := argDef.Name
		var (
			val     any
			present bool
		)
		if arg := args.ForName(name); arg != nil {
			if arg.Value.Kind == language.Variable {
				val, present = lookupVariable(state.variableValues, arg.Value.Raw)
			} else {
				val, present = resolveLiteral(arg.Value, state.variableValues), true
			}
		}
		if !present {
			switch {
			case argDef.DefaultValue != nil:
				v, err := c.defaultValue(argDef)
				if err != nil {
					state.addError(fmt.Sprintf("argument '%s' has an invalid default: %v", name, err), path)
					continue
				}
				coerced[name] = v
			case schema.IsNonNull(argDef.Type):
				state.addError(fmt.Sprintf("argument '%s' of required type was not provided", name), path)
			}
			continue
		}
		cv, err := c.value(val, argDef.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", name, err), path)
			continue
		}
		coerced[name] = cv
	}
	return coerced
}

// defaultValue returns the Go value of a default. Defaults read from SDL or
// introspection are kept as GraphQL literals.
func (c coercer) defaultValue(v *schema.InputValue) (any, error) {
	lit, ok := v.DefaultValue.(schema.Literal)
	if !ok {
		return v.DefaultValue, nil
	}
	parsed, err := language.ParseValue(string(lit))
	if err != nil {
		return nil, err
	}
	return c.value(resolveLiteral(parsed, nil), v.Type)
}

func (c coercer) value(v any, t *schema.TypeRef) (any, error) {
	if schema.IsNonNull(t) {
		if v == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return c.value(v, schema.Unwrap(t))
	}
	if v == nil {
		return nil, nil
	}
	if schema.IsList(t) {
		inner := schema.Unwrap(t)
		items, ok := v.([]any)
		if !ok {
			// a single value is a list of one
			item, err := c.value(v, inner)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := c.value(item, inner)
			if err != nil {
				return nil, fmt.Errorf("at index %d: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	}

	name := schema.GetNamedType(t)
	if scalar, ok := builtinScalars[name]; ok {
		return scalar(v)
	}
	if c.schema == nil {
		return v, nil
	}
	switch def := c.schema.Types[name]; {
	case def == nil:
		return v, nil
	case def.Kind == schema.TypeKindEnum:
		return c.enum(def, v)
	case def.Kind == schema.TypeKindInputObject:
		return c.inputObject(def, v)
	}
	return v, nil
}

func (c coercer) enum(def *schema.Type, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("enum %s cannot represent %v (%T)", def.Name, v, v)
	}
	for _, ev := range def.EnumValues {
		if ev.Name == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("value %q does not exist in enum %s", s, def.Name)
}

func (c coercer) inputObject(def *schema.Type, v any) (any, error) {
	in, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected input object %s, got %T", def.Name, v)
	}
	for key := range in {
		if !hasInputField(def, key) {
			return nil, fmt.Errorf("field %q is not defined by %s", key, def.Name)
		}
	}
	out := make(map[string]any, len(def.InputFields))
	for _, f := range def.InputFields {
		val, ok := in[f.Name]
		if !ok {
			switch {
			case f.DefaultValue != nil:
				dv, err := c.defaultValue(f)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
				}
				out[f.Name] = dv
			case schema.IsNonNull(f.Type):
				return nil, fmt.Errorf("field %s.%s of required type %s was not provided", def.Name, f.Name, f.Type)
			}
			continue
		}
		cv, err := c.value(val, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	return out, nil
}

func hasInputField(def *schema.Type, name string) bool {
	for _, f := range def.InputFields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// lookupVariable accepts names with or without the leading $.
func lookupVariable(values map[string]any, name string) (any, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	v, ok := values[strings.TrimPrefix(name, "$")]
	return v, ok
}

// resolveLiteral converts a literal to a Go value, substituting variables at
// any depth. Object fields bound to absent variables are left out so that
// input field defaults still apply.
func resolveLiteral(value *language.Value, vars map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		v, _ := lookupVariable(vars, value.Raw)
		return v
	case language.IntValue:
		if i, err := strconv.Atoi(value.Raw); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, child := range value.Children {
			out[i] = resolveLiteral(child.Value, vars)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(value.Children))
		for _, child := range value.Children {
			if child.Value.Kind == language.Variable {
				if _, ok := lookupVariable(vars, child.Value.Raw); !ok {
					continue
				}
			}
			out[child.Name] = resolveLiteral(child.Value, vars)
		}
		return out
	}
	return nil
}

var builtinScalars = map[string]func(any) (any, error){
	"Int":     coerceInt,
	"Float":   coerceFloat,
	"String":  coerceString,
	"Boolean": coerceBoolean,
	"ID":      coerceID,
}

func coerceInt(v any) (any, error) {
	var n float64
	switch v := v.(type) {
	case int:
		n = float64(v)
	case int32:
		return int(v), nil
	case int64:
		n = float64(v)
	case float32:
		n = float64(v)
	case float64:
		n = v
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("Int cannot represent %s", v)
		}
		n = float64(i)
	default:
		return nil, fmt.Errorf("Int cannot represent %v (%T)", v, v)
	}
	if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("Int cannot represent %v", v)
	}
	return int(n), nil
}

func coerceFloat(v any) (any, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return nil, fmt.Errorf("Float cannot represent %v (%T)", v, v)
}

func coerceString(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return nil, fmt.Errorf("String cannot represent %v (%T)", v, v)
}

func coerceBoolean(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("Boolean cannot represent %v (%T)", v, v)
}

func coerceID(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return v.String(), nil
		}
	}
	return nil, fmt.Errorf("ID cannot represent %v (%T)", v, v)
}
