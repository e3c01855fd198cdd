package humastar

import "fmt"

// DefaultLimit is the page size when a request does not give one.
const DefaultLimit = 50

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is a paginated response envelope. Returning it from a handler
// adds first/prev/next/last Link headers through the link transformer.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// PaginationLinks returns RFC 8288 Link header values for pagination rels.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, basePath, offset, limit, rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-limit, 0), "prev"))
	}
	if p.Offset+limit < p.Total {
		links = append(links, link(p.Offset+limit, "next"))
	}
	last := 0
	if p.Total > 0 {
		last = ((p.Total - 1) / limit) * limit
	}
	return append(links, link(last, "last"))
}
