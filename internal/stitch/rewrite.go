package stitch

import (
	executor "github.com/hanpama/stitchgraph/internal/executor"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/remote"
)

// delegatedQuery builds the query for field of the owning service from the
// caller's sub-selection of info.
func (g *Graph) delegatedQuery(op language.Operation, field string, args map[string]any, info executor.FieldInfo) *remote.DelegatedQuery {
	rw := &rewriter{graph: g, vars: make(map[string]bool)}
	if info.Request != nil {
		rw.doc = info.Request.Document
	}
	var typeName string
	if info.Definition != nil {
		typeName = info.Definition.Type.GetNamedType()
	}
	q := &remote.DelegatedQuery{Operation: op, FieldName: field, Arguments: args}
	if sub := info.SubSelection(); len(sub) > 0 {
		q.SelectionSet = rw.selectionSet(typeName, sub)
	}
	if len(rw.vars) == 0 || info.Request == nil || info.Request.Operation == nil {
		return q
	}
	q.Variables = make(map[string]any, len(rw.vars))
	for _, vd := range info.Request.Operation.VariableDefinitions {
		if !rw.vars[vd.Variable] {
			continue
		}
		q.VariableDefinitions = append(q.VariableDefinitions, vd)
		if v, ok := info.Request.Variables[vd.Variable]; ok {
			q.Variables[vd.Variable] = v
		}
	}
	return q
}

// rewriter turns a caller's selection into one the owning service
// understands. Extension fields are replaced by the fragment fields their
// bindings need, named fragments are inlined, and abstract selections also
// fetch the concrete type name.
type rewriter struct {
	graph *Graph
	doc   *language.QueryDocument
	vars  map[string]bool
	// fragments being inlined, against malformed cyclic spreads
	spreading []string
}

func (rw *rewriter) selectionSet(typeName string, set language.SelectionSet) language.SelectionSet {
	t := rw.graph.Schema.Types[typeName]
	var out language.SelectionSet
	if t != nil && t.IsAbstract() {
		out = append(out, &language.Field{Alias: TypenameKey, Name: "__typename"})
	}
	injected := make(map[string]bool)

	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if b := rw.graph.Binding(typeName, sel.Name); b != nil {
				for _, f := range b.Fragment {
					if !injected[f] {
						injected[f] = true
						out = append(out, &language.Field{Alias: FragmentKey(f), Name: f})
					}
				}
				continue
			}
			f := &language.Field{Alias: sel.Alias, Name: sel.Name, Arguments: sel.Arguments, Directives: sel.Directives}
			if f.Alias == "" {
				f.Alias = f.Name
			}
			rw.collectArguments(sel.Arguments)
			rw.collectDirectives(sel.Directives)
			if len(sel.SelectionSet) > 0 {
				var child string
				if t != nil {
					if def := t.Field(sel.Name); def != nil {
						child = def.Type.GetNamedType()
					}
				}
				f.SelectionSet = rw.selectionSet(child, sel.SelectionSet)
			}
			out = append(out, f)

		case *language.InlineFragment:
			cond := sel.TypeCondition
			if cond == "" {
				cond = typeName
			}
			rw.collectDirectives(sel.Directives)
			out = append(out, &language.InlineFragment{
				TypeCondition: sel.TypeCondition,
				Directives:    sel.Directives,
				SelectionSet:  rw.selectionSet(cond, sel.SelectionSet),
			})

		case *language.FragmentSpread:
			if rw.doc == nil || contains(rw.spreading, sel.Name) {
				continue
			}
			def := rw.doc.Fragments.ForName(sel.Name)
			if def == nil {
				continue
			}
			rw.collectDirectives(sel.Directives)
			rw.spreading = append(rw.spreading, sel.Name)
			inner := rw.selectionSet(def.TypeCondition, def.SelectionSet)
			rw.spreading = rw.spreading[:len(rw.spreading)-1]
			out = append(out, &language.InlineFragment{
				TypeCondition: def.TypeCondition,
				Directives:    sel.Directives,
				SelectionSet:  inner,
			})
		}
	}

	if len(out) == 0 {
		out = append(out, &language.Field{Alias: "__typename", Name: "__typename"})
	}
	return out
}

func (rw *rewriter) collectArguments(args language.ArgumentList) {
	for _, a := range args {
		rw.collectValue(a.Value)
	}
}

func (rw *rewriter) collectDirectives(dirs language.DirectiveList) {
	for _, d := range dirs {
		rw.collectArguments(d.Arguments)
	}
}

func (rw *rewriter) collectValue(v *language.Value) {
	if v == nil {
		return
	}
	if v.Kind == language.Variable {
		rw.vars[v.Raw] = true
		return
	}
	for _, c := range v.Children {
		rw.collectValue(c.Value)
	}
}
