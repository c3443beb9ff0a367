package executor

import (
	language "github.com/hanpama/stitchgraph/internal/language"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// fieldGroup is every selection of one response key on an object.
type fieldGroup struct {
	ResponseName string
	Fields       []*language.Field
}

// fieldCollector implements CollectFields for one object type. Groups keep
// the order in which their response keys first appear in the document.
type fieldCollector struct {
	state      *executionState
	objectType *schema.Type
	groups     []fieldGroup
	byName     map[string]int
	visited    map[string]bool
}

func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet) []fieldGroup {
	c := &fieldCollector{
		state:      state,
		objectType: objectType,
		byName:     make(map[string]int),
		visited:    make(map[string]bool),
	}
	c.collect(selectionSet)
	return c.groups
}

func (c *fieldCollector) collect(selectionSet language.SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if c.included(sel.Directives) {
				c.add(sel)
			}
		case *language.InlineFragment:
			if c.included(sel.Directives) && c.applies(sel.TypeCondition) {
				c.collect(sel.SelectionSet)
			}
		case *language.FragmentSpread:
			if !c.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := c.state.request.Document.Fragments.ForName(sel.Name)
			if def == nil || !c.applies(def.TypeCondition) || !c.included(def.Directives) {
				continue
			}
			c.collect(def.SelectionSet)
		}
	}
}

func (c *fieldCollector) add(f *language.Field) {
	key := f.Alias
	if key == "" {
		key = f.Name
	}
	if i, ok := c.byName[key]; ok {
		c.groups[i].Fields = append(c.groups[i].Fields, f)
		return
	}
	c.byName[key] = len(c.groups)
	c.groups = append(c.groups, fieldGroup{ResponseName: key, Fields: []*language.Field{f}})
}

// applies reports whether a type condition matches the object type, either
// by name or through an interface or union the object belongs to.
func (c *fieldCollector) applies(typeCondition string) bool {
	if typeCondition == "" || typeCondition == c.objectType.Name {
		return true
	}
	cond := c.state.schema.Types[typeCondition]
	return cond != nil && cond.IsAbstract() && isPossibleType(cond, c.objectType)
}

// included evaluates @skip and @include.
func (c *fieldCollector) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && c.condition(d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !c.condition(d) {
		return false
	}
	return true
}

func (c *fieldCollector) condition(d *language.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v, _ := resolveLiteral(arg.Value, c.state.variableValues).(bool)
	return v
}
