package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/link"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// ArgumentVariablePrefix prefixes the variables that carry computed
// arguments. Caller variables must not use it.
const ArgumentVariablePrefix = "_stitch_"

// DelegatedQuery is one root field sent to the service that owns it.
type DelegatedQuery struct {
	// Operation is language.Query or language.Mutation; empty means query.
	Operation language.Operation
	FieldName string
	// Arguments are sent as typed variables, one per argument.
	Arguments map[string]any
	// SelectionSet is the caller's sub-selection, already rewritten for the
	// service. An empty set is sent as { __typename } for composite fields.
	SelectionSet language.SelectionSet
	// VariableDefinitions and Variables are the caller variables that
	// SelectionSet references.
	VariableDefinitions language.VariableDefinitionList
	Variables           map[string]any
}

// Result is the value of a delegated root field together with the errors
// the service reported below it. Error paths are relative to the field, so
// an empty path means the field itself.
type Result struct {
	Value  any
	Errors []link.RemoteError
}

// Delegate sends q to the service and returns the value of the root field
// unchanged.
func (d *Descriptor) Delegate(ctx context.Context, q *DelegatedQuery) (Result, error) {
	req, err := d.Prepare(q)
	if err != nil {
		return Result{}, &DelegationError{Service: d.Name, Field: q.FieldName, Err: err}
	}
	return d.Dispatch(ctx, q.FieldName, req)
}

// Prepare prints q as a request document. Equal queries print equal requests.
func (d *Descriptor) Prepare(q *DelegatedQuery) (*link.Request, error) {
	op := q.Operation
	if op == "" {
		op = language.Query
	}
	var root *schema.Type
	switch op {
	case language.Query:
		root = d.Schema.GetQueryType()
	case language.Mutation:
		root = d.Schema.GetMutationType()
	}
	if root == nil {
		return nil, fmt.Errorf("%s has no %s root type", d.Name, op)
	}
	def := root.Field(q.FieldName)
	if def == nil {
		return nil, fmt.Errorf("%s does not define %s.%s", d.Name, root.Name, q.FieldName)
	}

	field := &language.Field{Alias: q.FieldName, Name: q.FieldName, SelectionSet: q.SelectionSet}
	vars := make(map[string]any, len(q.Arguments)+len(q.Variables))
	var defs language.VariableDefinitionList

	names := make([]string, 0, len(q.Arguments))
	for name := range q.Arguments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		argDef := def.Argument(name)
		if argDef == nil {
			return nil, fmt.Errorf("%s.%s has no argument %q", root.Name, q.FieldName, name)
		}
		v := ArgumentVariablePrefix + name
		defs = append(defs, &language.VariableDefinition{Variable: v, Type: schema.TypeRefToAST(argDef.Type)})
		field.Arguments = append(field.Arguments, &language.Argument{
			Name:  name,
			Value: &language.Value{Kind: language.Variable, Raw: v},
		})
		vars[v] = q.Arguments[name]
	}

	caller := append(language.VariableDefinitionList(nil), q.VariableDefinitions...)
	sort.Slice(caller, func(i, j int) bool { return caller[i].Variable < caller[j].Variable })
	for _, vd := range caller {
		if strings.HasPrefix(vd.Variable, ArgumentVariablePrefix) {
			return nil, fmt.Errorf("variable $%s uses the reserved prefix %s", vd.Variable, ArgumentVariablePrefix)
		}
		defs = append(defs, vd)
		if v, ok := q.Variables[vd.Variable]; ok {
			vars[vd.Variable] = v
		}
	}

	if len(field.SelectionSet) == 0 {
		if t := d.Schema.Types[def.Type.GetNamedType()]; t != nil && !t.IsLeaf() {
			field.SelectionSet = language.SelectionSet{&language.Field{Alias: "__typename", Name: "__typename"}}
		}
	}

	doc := &language.QueryDocument{Operations: language.OperationList{{
		Operation:           op,
		VariableDefinitions: defs,
		SelectionSet:        language.SelectionSet{field},
	}}}
	return &link.Request{Query: language.FormatQuery(doc), Variables: vars}, nil
}

// Dispatch sends a prepared request and returns data[field]. A null value
// reported together with errors is a failure. Errors next to a value are
// kept on the Result.
func (d *Descriptor) Dispatch(ctx context.Context, field string, req *link.Request) (Result, error) {
	resp, err := d.Link.Execute(ctx, req)
	if err != nil {
		return Result{}, &DelegationError{Service: d.Name, Field: field, Timeout: link.IsTimeout(err), Err: err}
	}
	value := resp.Data[field]
	if value == nil && len(resp.Errors) > 0 {
		return Result{}, &DelegationError{Service: d.Name, Field: field, Err: link.JoinErrors(resp.Errors)}
	}
	return Result{Value: value, Errors: relocate(field, resp.Errors)}, nil
}

// relocate makes error paths relative to field. Errors that do not point
// below field are reported at the field. List indices become ints.
func relocate(field string, errs []link.RemoteError) []link.RemoteError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]link.RemoteError, len(errs))
	for i, e := range errs {
		var rel []any
		if len(e.Path) > 0 && e.Path[0] == field {
			rel = make([]any, 0, len(e.Path)-1)
			for _, elem := range e.Path[1:] {
				rel = append(rel, pathElement(elem))
			}
		}
		e.Path = rel
		out[i] = e
	}
	return out
}

func pathElement(elem any) any {
	switch v := elem.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(v)
	}
	return elem
}
