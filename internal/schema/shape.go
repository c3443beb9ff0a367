package schema

import (
	"sort"
	"strings"
)

// Signature returns a canonical description of a type's shape: its kind and
// every member that affects how values of the type are queried or written.
// Descriptions and deprecation notes are ignored. Two types with the same
// name and equal signatures can be served as one.
func Signature(t *Type) string {
	var b strings.Builder
	b.WriteString(string(t.Kind))
	b.WriteString(" ")
	b.WriteString(t.Name)

	switch t.Kind {
	case TypeKindObject, TypeKindInterface:
		b.WriteString(" implements ")
		b.WriteString(strings.Join(sorted(t.Interfaces), "&"))
		fields := make([]string, 0, len(t.Fields))
		for _, f := range t.Fields {
			fields = append(fields, fieldSignature(f))
		}
		sort.Strings(fields)
		b.WriteString(" {")
		b.WriteString(strings.Join(fields, " "))
		b.WriteString("}")
	case TypeKindUnion:
		b.WriteString(" = ")
		b.WriteString(strings.Join(sorted(t.PossibleTypes), "|"))
	case TypeKindEnum:
		values := make([]string, 0, len(t.EnumValues))
		for _, v := range t.EnumValues {
			values = append(values, v.Name)
		}
		b.WriteString(" {")
		b.WriteString(strings.Join(sorted(values), " "))
		b.WriteString("}")
	case TypeKindInputObject:
		if t.OneOf {
			b.WriteString(" @oneOf")
		}
		b.WriteString(" {")
		b.WriteString(inputValuesSignature(t.InputFields))
		b.WriteString("}")
	}
	return b.String()
}

func fieldSignature(f *Field) string {
	s := f.Name
	if len(f.Arguments) > 0 {
		s += "(" + inputValuesSignature(f.Arguments) + ")"
	}
	return s + ":" + renderTypeRef(f.Type)
}

func inputValuesSignature(values []*InputValue) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		p := v.Name + ":" + renderTypeRef(v.Type)
		if v.DefaultValue != nil {
			p += "=" + renderValue(v.DefaultValue)
		}
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
