package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render prints s as SDL. Types and directives are sorted by name; builtin
// scalars, builtin directives and introspection types are left out. Fields,
// arguments and values keep their declaration order.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	w := &sdlWriter{}
	w.schemaBlock(s)
	for _, name := range sortedKeys(s.Types) {
		if IsBuiltinScalar(name) || IsIntrospectionName(name) {
			continue
		}
		w.typeDef(s.Types[name])
	}
	for _, name := range sortedKeys(s.Directives) {
		if !IsBuiltinDirective(name) {
			w.directiveDef(s.Directives[name])
		}
	}
	return strings.TrimRight(w.String(), "\n") + "\n"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type sdlWriter struct {
	strings.Builder
}

func (w *sdlWriter) print(parts ...string) {
	for _, p := range parts {
		w.WriteString(p)
	}
}

// schemaBlock is only written when a root type has a non-default name.
func (w *sdlWriter) schemaBlock(s *Schema) {
	roots := []struct{ op, name, conventional string }{
		{"query", s.QueryType, "Query"},
		{"mutation", s.MutationType, "Mutation"},
		{"subscription", s.SubscriptionType, "Subscription"},
	}
	custom := false
	for _, r := range roots {
		custom = custom || (r.name != "" && r.name != r.conventional)
	}
	if !custom {
		return
	}
	w.print("schema {\n")
	for _, r := range roots {
		if r.name != "" {
			w.print("  ", r.op, ": ", r.name, "\n")
		}
	}
	w.print("}\n\n")
}

// description writes a block string at column zero so multi-line text
// survives the block string dedent on the way back in.
func (w *sdlWriter) description(desc string) {
	if desc == "" {
		return
	}
	w.print(`"""`, "\n", strings.ReplaceAll(desc, `"""`, `\"""`), "\n", `"""`, "\n")
}

func (w *sdlWriter) typeDef(t *Type) {
	w.description(t.Description)
	switch t.Kind {
	case TypeKindScalar:
		w.print("scalar ", t.Name)
		if t.SpecifiedByURL != nil {
			w.print(" @specifiedBy(url: ", strconv.Quote(*t.SpecifiedByURL), ")")
		}
		w.print("\n\n")
	case TypeKindUnion:
		w.print("union ", t.Name, " = ", strings.Join(t.PossibleTypes, " | "), "\n\n")
	case TypeKindEnum:
		w.print("enum ", t.Name, " {\n")
		for _, v := range t.EnumValues {
			w.description(v.Description)
			w.print("  ", v.Name)
			w.deprecation(v.IsDeprecated, v.DeprecationReason)
			w.print("\n")
		}
		w.print("}\n\n")
	case TypeKindInputObject:
		w.print("input ", t.Name)
		if t.OneOf {
			w.print(" @oneOf")
		}
		w.print(" {\n")
		for _, f := range t.InputFields {
			w.description(f.Description)
			w.print("  ")
			w.inputValue(f)
			w.deprecation(f.IsDeprecated, f.DeprecationReason)
			w.print("\n")
		}
		w.print("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if t.Kind == TypeKindInterface {
			keyword = "interface "
		}
		w.print(keyword, t.Name)
		if len(t.Interfaces) > 0 {
			w.print(" implements ", strings.Join(t.Interfaces, " & "))
		}
		w.print(" {\n")
		for _, f := range t.Fields {
			w.description(f.Description)
			w.print("  ", f.Name)
			w.arguments(f.Arguments)
			w.print(": ", renderTypeRef(f.Type))
			w.deprecation(f.IsDeprecated, f.DeprecationReason)
			w.print("\n")
		}
		w.print("}\n\n")
	}
}

func (w *sdlWriter) directiveDef(d *Directive) {
	w.description(d.Description)
	w.print("directive @", d.Name)
	w.arguments(d.Arguments)
	if d.IsRepeatable {
		w.print(" repeatable")
	}
	w.print(" on ", strings.Join(d.Locations, " | "), "\n\n")
}

func (w *sdlWriter) arguments(args []*InputValue) {
	if len(args) == 0 {
		return
	}
	w.print("(")
	for i, a := range args {
		if i > 0 {
			w.print(", ")
		}
		w.inputValue(a)
	}
	w.print(")")
}

func (w *sdlWriter) inputValue(v *InputValue) {
	w.print(v.Name, ": ", renderTypeRef(v.Type))
	if v.DefaultValue != nil {
		w.print(" = ", renderValue(v.DefaultValue))
	}
}

func (w *sdlWriter) deprecation(deprecated bool, reason string) {
	if !deprecated {
		return
	}
	w.print(" @deprecated")
	if reason != "" {
		w.print("(reason: ", strconv.Quote(reason), ")")
	}
}

func renderTypeRef(ref *TypeRef) string {
	if ref == nil {
		return ""
	}
	switch ref.Kind {
	case TypeRefKindNamed:
		return ref.Named
	case TypeRefKindList:
		return "[" + renderTypeRef(ref.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(ref.OfType) + "!"
	}
	return ""
}

// FormatValue renders a Go value in GraphQL literal notation. Map keys are
// sorted; strings are quoted unless they are a Literal.
func FormatValue(value any) string { return renderValue(value) }

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case Literal:
		return string(v)
	case string:
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(v))
		for _, k := range sortedKeys(v) {
			parts = append(parts, k+": "+renderValue(v[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(value)
}
