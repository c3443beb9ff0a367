// Package extension compiles the extension document: `extend type` blocks
// that add cross-service fields to types owned by remote services.
//
//	extend type User {
//	  chirps(limit: Int = 10): [Chirp]
//	}
//
// The document declares shapes only. Which service answers a field, and how,
// is supplied separately as a binding.
package extension

import (
	"errors"
	"fmt"
	"strings"

	language "github.com/hanpama/stitchgraph/internal/language"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// Definition is one field added to an existing object type.
type Definition struct {
	OwnerType   string
	FieldName   string
	ReturnType  *schema.TypeRef
	Arguments   []*schema.InputValue
	Description string
	// DeprecationReason is set when the field carries @deprecated.
	DeprecationReason string
	Deprecated        bool
}

// ReturnTypeName returns the innermost named type of the field.
func (d Definition) ReturnTypeName() string { return d.ReturnType.GetNamedType() }

// Coordinate returns "Type.field".
func (d Definition) Coordinate() string { return d.OwnerType + "." + d.FieldName }

// Field returns the schema field the definition adds.
func (d Definition) Field() *schema.Field {
	f := schema.NewField(d.FieldName, d.Description, d.ReturnType)
	for _, a := range d.Arguments {
		c := *a
		f.AddArgument(&c)
	}
	if d.Deprecated {
		f.Deprecate(d.DeprecationReason)
	}
	return f
}

// SchemaExtensionSyntaxError reports a malformed extension document. Type and
// Field name the offending declaration when it is known.
type SchemaExtensionSyntaxError struct {
	Type    string
	Field   string
	Line    int
	Column  int
	Message string
}

func (e *SchemaExtensionSyntaxError) Error() string {
	loc := ""
	if e.Line > 0 {
		loc = fmt.Sprintf("%d:%d: ", e.Line, e.Column)
	}
	switch {
	case e.Type != "" && e.Field != "":
		return fmt.Sprintf("extension: %s%s.%s: %s", loc, e.Type, e.Field, e.Message)
	case e.Type != "":
		return fmt.Sprintf("extension: %s%s: %s", loc, e.Type, e.Message)
	}
	return fmt.Sprintf("extension: %s%s", loc, e.Message)
}

// Compile parses text and returns its field definitions in document order.
// name labels the source in error positions.
func Compile(name, text string) ([]Definition, error) {
	doc, err := language.ParseSchema(name, text)
	if err != nil {
		se := &SchemaExtensionSyntaxError{Message: err.Error()}
		var gqlErr *language.Error
		if errors.As(err, &gqlErr) {
			se.Message = gqlErr.Message
			if len(gqlErr.Locations) > 0 {
				se.Line = gqlErr.Locations[0].Line
				se.Column = gqlErr.Locations[0].Column
			}
		}
		return nil, se
	}

	if len(doc.Schema) > 0 || len(doc.SchemaExtension) > 0 {
		return nil, syntaxErr("", "", positionOf(doc), "schema definitions are not allowed")
	}
	if len(doc.Directives) > 0 {
		d := doc.Directives[0]
		return nil, syntaxErr("", "", d.Position, fmt.Sprintf("directive definition @%s is not allowed", d.Name))
	}
	if len(doc.Definitions) > 0 {
		d := doc.Definitions[0]
		return nil, syntaxErr(d.Name, "", d.Position, "only `extend type` blocks are allowed")
	}

	var out []Definition
	seen := make(map[string]bool)
	for _, ext := range doc.Extensions {
		if ext.Kind != language.Object {
			return nil, syntaxErr(ext.Name, "", ext.Position, fmt.Sprintf("cannot extend %s types", kindName(ext.Kind)))
		}
		if len(ext.Interfaces) > 0 {
			return nil, syntaxErr(ext.Name, "", ext.Position, "extensions cannot add interfaces")
		}
		if len(ext.Directives) > 0 {
			return nil, syntaxErr(ext.Name, "", ext.Position, "extensions cannot add directives")
		}
		if len(ext.Fields) == 0 {
			return nil, syntaxErr(ext.Name, "", ext.Position, "extension declares no fields")
		}
		for _, fd := range ext.Fields {
			def, err := compileField(ext.Name, fd)
			if err != nil {
				return nil, err
			}
			if seen[def.Coordinate()] {
				return nil, syntaxErr(ext.Name, fd.Name, fd.Position, "field declared twice")
			}
			seen[def.Coordinate()] = true
			out = append(out, def)
		}
	}
	return out, nil
}

func compileField(owner string, fd *language.FieldDefinition) (Definition, error) {
	def := Definition{
		OwnerType:   owner,
		FieldName:   fd.Name,
		ReturnType:  schema.TypeRefFromAST(fd.Type),
		Description: fd.Description,
	}
	if strings.HasPrefix(fd.Name, "__") {
		return def, syntaxErr(owner, fd.Name, fd.Position, "names starting with __ are reserved")
	}
	for _, d := range fd.Directives {
		if d.Name != "deprecated" {
			return def, syntaxErr(owner, fd.Name, d.Position, fmt.Sprintf("unsupported directive @%s", d.Name))
		}
		def.Deprecated = true
		def.DeprecationReason = "No longer supported"
		if r := d.Arguments.ForName("reason"); r != nil && r.Value != nil {
			def.DeprecationReason = r.Value.Raw
		}
	}
	seen := make(map[string]bool, len(fd.Arguments))
	for _, a := range fd.Arguments {
		if seen[a.Name] {
			return def, syntaxErr(owner, fd.Name, a.Position, fmt.Sprintf("argument %s declared twice", a.Name))
		}
		seen[a.Name] = true
		in := schema.NewInputValue(a.Name, a.Description, schema.TypeRefFromAST(a.Type))
		if a.DefaultValue != nil {
			in.SetDefault(schema.Literal(a.DefaultValue.String()))
		}
		def.Arguments = append(def.Arguments, in)
	}
	return def, nil
}

func syntaxErr(typ, field string, pos *language.Position, msg string) *SchemaExtensionSyntaxError {
	e := &SchemaExtensionSyntaxError{Type: typ, Field: field, Message: msg}
	if pos != nil {
		e.Line = pos.Line
		e.Column = pos.Column
	}
	return e
}

func positionOf(doc *language.SchemaDocument) *language.Position {
	if len(doc.Schema) > 0 {
		return doc.Schema[0].Position
	}
	if len(doc.SchemaExtension) > 0 {
		return doc.SchemaExtension[0].Position
	}
	return nil
}

func kindName(k language.DefinitionKind) string {
	switch k {
	case language.Interface:
		return "interface"
	case language.Union:
		return "union"
	case language.Enum:
		return "enum"
	case language.InputObject:
		return "input"
	case language.Scalar:
		return "scalar"
	}
	return string(k)
}
