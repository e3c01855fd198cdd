// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// It provides:
//   - SSE: Huma streaming → Datastar SSE protocol via [SSE] and [NewSSE]
//   - Signals: Datastar signal parsing via [Signals] and [SignalsInput]
//   - Rendering: template list/select helpers via [RenderList] and [RenderSelect]
//   - Handler: embeddable base for page handlers via [Handler]
//
// Usage:
//
//	type GISHandler struct {
//	    humastar.Handler
//	    sessions *Sessions
//	}
//
//	func (h *GISHandler) Cancel(ctx context.Context, in *SessionInput) (*huma.StreamResponse, error) {
//	    return h.Stream(func(sse humastar.SSE) {
//	        sse.Signals(map[string]any{"editing": false})
//	    }), nil
//	}
package humastar

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-assets/internal/templates"
)

// Handler is an embeddable base for Huma handlers that answer with Datastar
// SSE responses.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// RenderList renders items with a named template, or an empty state if none.
func (h *Handler) RenderList(tmpl string, items []any, emptyTitle, emptyMsg string) string {
	return RenderList(h.Renderer, tmpl, items, emptyTitle, emptyMsg)
}

// SSE wraps a Datastar SSE generator with the patterns the pages use.
type SSE struct {
	*datastar.ServerSentEventGenerator
	ctx context.Context
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r), r.Context()}
}

// Context is done when the client goes away.
func (s SSE) Context() context.Context {
	return s.ctx
}

// Patch replaces the inner HTML at a CSS selector.
func (s SSE) Patch(html, selector string) error {
	return s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
	)
}

// Replace replaces the outer HTML at a CSS selector.
func (s SSE) Replace(html, selector string) error {
	return s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
	)
}

// Error sets the error banner signal.
func (s SSE) Error(msg string) error {
	return s.MarshalAndPatchSignals(map[string]any{"error": msg, "success": ""})
}

// Success sets the success signal and clears the error banner.
func (s SSE) Success(msg string) error {
	return s.MarshalAndPatchSignals(map[string]any{"success": msg, "error": ""})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) error {
	return s.MarshalAndPatchSignals(signals)
}

// FieldErrors sets one message per form field. Fields missing from msgs are
// cleared.
func (s SSE) FieldErrors(fields []string, msgs map[string]string) error {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = msgs[f]
	}
	return s.MarshalAndPatchSignals(map[string]any{"fieldErrors": out})
}

// Dispatch fires a browser CustomEvent carrying payload as its detail.
func (s SSE) Dispatch(event string, payload any) error {
	return s.DispatchCustomEvent(event, payload)
}

// Signals is the flat JSON object Datastar posts with every action.
type Signals map[string]any

// ParseSignals parses Datastar signals from a raw request body.
func ParseSignals(body []byte) (Signals, error) {
	signals := Signals{}
	if len(bytes.TrimSpace(body)) == 0 {
		return signals, nil
	}
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns a signal as text. Numbers and booleans are formatted, so a
// number input bound to a signal still reads back as typed.
func (s Signals) String(key string) string {
	switch v := s[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Bool returns a bool signal value, or false if not found.
func (s Signals) Bool(key string) bool {
	b, _ := s[key].(bool)
	return b
}

// Has returns true if the signal key exists (even if zero-valued).
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Prefixed collects the signals named prefix+name for each name, keyed by
// name. Absent signals are skipped.
func (s Signals) Prefixed(prefix string, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		key := SignalName(prefix, n)
		if s.Has(key) {
			out[n] = s.String(key)
		}
	}
	return out
}

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}

// SignalsInput is an input struct for handlers that receive Datastar signals.
type SignalsInput struct {
	RawBody []byte
}

// Parse parses the signals or returns a Huma 400 error.
func (i *SignalsInput) Parse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// SelectOptionData holds data for rendering a <select> option template.
type SelectOptionData struct {
	Value string
	Label string
}

// RenderList renders items with a named template, or an empty state if none.
func RenderList(r *templates.Renderer, tmpl string, items []any, emptyTitle, emptyMsg string) string {
	var buf bytes.Buffer
	if len(items) == 0 {
		r.RenderToBuffer(&buf, "empty-state", map[string]string{
			"Title": emptyTitle, "Message": emptyMsg,
		})
		return buf.String()
	}
	for _, item := range items {
		r.RenderToBuffer(&buf, tmpl, item)
	}
	return buf.String()
}

// RenderSelect renders <option> elements from a placeholder and option list.
func RenderSelect(r *templates.Renderer, placeholder string, options []SelectOptionData) string {
	var buf bytes.Buffer
	r.RenderToBuffer(&buf, "select-option", SelectOptionData{Label: placeholder})
	for _, opt := range options {
		r.RenderToBuffer(&buf, "select-option", opt)
	}
	return buf.String()
}
