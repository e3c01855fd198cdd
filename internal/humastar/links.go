package humastar

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// LinkSet holds RFC 8288 Link header values keyed by operation path.
type LinkSet struct {
	mu    sync.RWMutex
	links map[string][]string
}

// NewLinkSet returns an empty set.
func NewLinkSet() *LinkSet {
	return &LinkSet{links: map[string][]string{}}
}

// Add records a link from one operation path to a target.
func (l *LinkSet) Add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.links[from] {
		if existing == val {
			return
		}
	}
	l.links[from] = append(l.links[from], val)
}

// For returns the links recorded for an operation path.
func (l *LinkSet) For(p string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.links[p]...)
}

// AutoLinks derives links from the registered operations: items link to
// their collection, collections link to their item template and back to the
// entry point, and the entry point links to every collection and the API
// description. Operations tagged skipTag (SSE page endpoints) are ignored.
// Call after all routes are registered.
func (l *LinkSet) AutoLinks(api huma.API, entry, skipTag string) {
	oapi := api.OpenAPI()

	var collections, items []string
	for p, pi := range oapi.Paths {
		if hasTag(primaryTags(pi), skipTag) || p == entry {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	sort.Strings(collections)
	sort.Strings(items)

	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := oapi.Paths[parent]; ok {
			l.Add(item, parent, "collection")
		}
		if pi := oapi.Paths[item]; pi.Put != nil || pi.Patch != nil {
			l.Add(item, item, "edit")
		}
	}

	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item) == coll {
				l.Add(coll, item, "item")
			}
		}
		if oapi.Paths[coll].Post != nil {
			l.Add(coll, coll, "create-form")
		}
		l.Add(coll, entry, "up")
		l.Add(entry, coll, lastSegment(coll))
	}

	l.Add(entry, "/openapi.json", "service-desc")
	l.Add(entry, "/docs", "service-doc")
}

// Transformer returns a Huma transformer that writes the Link headers: the
// recorded links for the operation, a self link on item paths, pagination
// links from Pager bodies, and actions from Actor bodies.
func (l *LinkSet) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
