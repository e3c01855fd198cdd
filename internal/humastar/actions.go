package humastar

import (
	"fmt"
	"strings"
)

// Action is a state-dependent hypermedia action. Response bodies that
// implement Actor get one RFC 8288 Link header per action, carrying the
// method and title as extension parameters:
//
//	</api/v1/assets/a1>; rel="delete"; method="DELETE"; title="Delete asset"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
	Schema string // JSON Schema URL of the request body, if any
}

// Actor is implemented by response bodies that offer actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as a Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		fmt.Fprintf(&b, `; method="%s"`, a.Method)
	}
	if a.Title != "" {
		fmt.Fprintf(&b, `; title="%s"`, a.Title)
	}
	if a.Schema != "" {
		fmt.Fprintf(&b, `; schema="%s"`, a.Schema)
	}
	return b.String()
}
