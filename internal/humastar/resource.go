package humastar

import (
	"fmt"
	"net/url"
)

// ActionDef is an action template. Pattern holds one %s verb that is
// replaced by the path-escaped resource ID.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
	Schema  string
}

// ActionsFor expands defs for one resource ID.
func ActionsFor(id string, defs []ActionDef) []Action {
	escaped := url.PathEscape(id)
	actions := make([]Action, len(defs))
	for i, d := range defs {
		actions[i] = Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, escaped),
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		}
	}
	return actions
}
