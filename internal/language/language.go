package language

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses and validates SDL, including the builtin prelude.
func LoadSchema(name, source string) (*Schema, error) {
	sch, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return sch, nil
}

// LoadQuery parses a query document and validates it against sch.
func LoadQuery(sch *Schema, source string) (*QueryDocument, ErrorList) {
	return gqlparser.LoadQuery(sch, source)
}

// ErrorAt returns a validation error located at pos, when pos is known.
func ErrorAt(pos *Position, format string, args ...any) *Error {
	if pos == nil || pos.Src == nil {
		return gqlerror.Errorf(format, args...)
	}
	return gqlerror.ErrorPosf(pos, format, args...)
}

// FormatQuery prints doc as GraphQL source text.
func FormatQuery(doc *QueryDocument) string {
	var b strings.Builder
	formatter.NewFormatter(&b).FormatQueryDocument(doc)
	return b.String()
}

// ParseValue parses a single constant GraphQL value such as `10`,
// `PLAIN` or `{limit: 3}`.
func ParseValue(source string) (*Value, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: "{f(v: " + source + ")}"})
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", source, err)
	}
	f, ok := doc.Operations[0].SelectionSet[0].(*ast.Field)
	if !ok || len(f.Arguments) != 1 {
		return nil, fmt.Errorf("invalid value %q", source)
	}
	return f.Arguments[0].Value, nil
}
