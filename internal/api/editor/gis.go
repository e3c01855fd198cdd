package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/humastar"
	"github.com/joeblew999/plat-assets/internal/mapsync"
	"github.com/joeblew999/plat-assets/internal/service"
	"github.com/joeblew999/plat-assets/internal/templates"
)

// signalPrefix prefixes the asset form signals, e.g. "assetlatitude".
const signalPrefix = "asset"

// GISHandler serves the GIS page and its session endpoints.
type GISHandler struct {
	humastar.Handler
	sessions *Sessions
	bus      *service.EventBus
	log      *slog.Logger
	form     humastar.Form
}

// NewGISHandler creates the page handler. bus may be nil when the page
// persists to a remote backend.
func NewGISHandler(sessions *Sessions, bus *service.EventBus, renderer *templates.Renderer, log *slog.Logger) *GISHandler {
	return &GISHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		bus:      bus,
		log:      log,
		form:     assetForm(),
	}
}

// assetForm maps the asset form fields onto Datastar inputs.
func assetForm() humastar.Form {
	f := humastar.Form{Prefix: signalPrefix}
	for _, ff := range mapsync.FormFields {
		in := humastar.FormInput{Name: ff.Name, Label: ff.Label, Input: ff.Input, Required: true}
		if ff.Input == "number" {
			in.Input = "decimal"
		}
		for _, o := range ff.Options {
			in.Options = append(in.Options, humastar.SelectOptionData{Value: o.Value, Label: o.Label})
		}
		f.Inputs = append(f.Inputs, in)
	}
	return f
}

// RegisterRoutes registers the session endpoints.
func (h *GISHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("gis")
	huma.Get(api, "/api/v1/gis/{session}/stream", h.MapStream, tags)
	huma.Post(api, "/api/v1/gis/{session}/select/{id}", h.Select, tags)
	huma.Post(api, "/api/v1/gis/{session}/draft", h.Draft, tags)
	huma.Post(api, "/api/v1/gis/{session}/commit", h.Commit, tags)
	huma.Post(api, "/api/v1/gis/{session}/cancel", h.Cancel, tags)
	huma.Delete(api, "/api/v1/gis/{session}/assets/{id}", h.Delete, tags)
}

// PageData is what gis.html renders.
type PageData struct {
	SessionID string
	Base      string
	Signals   string
	Form      template.HTML
	AssetList template.HTML
	MapError  string
	LoadError string
}

// Page mounts a session and renders the page around it.
func (h *GISHandler) Page(w http.ResponseWriter, r *http.Request) {
	ps := h.sessions.Mount(r.Context())
	data := PageData{
		SessionID: ps.ID,
		Base:      sessionBase(ps.ID),
		Form:      h.form.HTML(),
		AssetList: template.HTML(h.renderAssetList(ps)),
	}
	if err := ps.MapError(); err != nil {
		data.MapError = err.Error()
	}
	if err := ps.LoadError(); err != nil {
		data.LoadError = "Could not load assets: " + err.Error()
	}
	data.Signals = h.form.InitialSignals(map[string]any{
		"editing":  false,
		"selected": "",
		"error":    data.LoadError,
		"success":  "",
		"mapError": data.MapError,
	})

	var buf bytes.Buffer
	if err := h.Renderer.RenderToBuffer(&buf, "gis.html", data); err != nil {
		h.log.Error("render gis page", "error", err)
		h.sessions.Close(ps.ID)
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func sessionBase(id string) string {
	return "/api/v1/gis/" + url.PathEscape(id)
}

// SessionInput addresses a page session.
type SessionInput struct {
	Session string `path:"session" doc:"Page session ID"`
}

// AssetInput addresses an asset within a page session.
type AssetInput struct {
	Session string `path:"session" doc:"Page session ID"`
	ID      string `path:"id" doc:"Asset ID"`
}

// FormInput carries the form signals of a page session.
type FormInput struct {
	Session string `path:"session" doc:"Page session ID"`
	humastar.SignalsInput
}

func (h *GISHandler) session(id string) (*PageSession, error) {
	ps, ok := h.sessions.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("page session not found; reload the page")
	}
	return ps, nil
}

// MapStream is the page's map stream. Opening it is the container readiness
// signal; closing it unmounts the session.
func (h *GISHandler) MapStream(ctx context.Context, in *SessionInput) (*huma.StreamResponse, error) {
	ps, err := h.session(in.Session)
	if err != nil {
		return nil, err
	}
	if !ps.surface.attach() {
		return nil, huma.Error409Conflict("page session already has a map stream")
	}

	return h.Stream(func(sse humastar.SSE) {
		defer h.sessions.Close(ps.ID)
		streamCtx := sse.Context()

		changed := make(chan struct{}, 1)
		dropped := make(chan string, 8)
		if h.bus != nil {
			events := h.bus.Subscribe()
			defer h.bus.Unsubscribe(events)
			go h.relay(streamCtx, ps, events, changed, dropped)
		}

		go func() {
			if err := ps.ContainerReady(); err != nil && !errors.Is(err, mapsync.ErrSessionClosed) {
				h.log.Warn("map unavailable", "session", ps.ID, "error", err)
			}
			if err := ps.MapError(); err != nil {
				notify(changed)
			}
		}()

		for {
			select {
			case <-streamCtx.Done():
				return
			case op := <-ps.surface.ops:
				if err := sse.Dispatch(op.Event, op.Payload); err != nil {
					h.log.Debug("map stream write failed", "session", ps.ID, "error", err)
					return
				}
			case <-changed:
				h.patchList(sse, ps)
				mapErr := ""
				if err := ps.MapError(); err != nil {
					mapErr = err.Error()
				}
				sse.Signals(map[string]any{"mapError": mapErr})
			case id := <-dropped:
				h.resetForm(sse)
				sse.Error(fmt.Sprintf("Asset %q was deleted elsewhere; your edits were discarded", id))
			}
		}
	}), nil
}

// relay applies registry changes made elsewhere to the session. IDs whose
// selection was dropped go to dropped so the stream can clear the form.
func (h *GISHandler) relay(ctx context.Context, ps *PageSession, events <-chan service.Event, changed chan struct{}, dropped chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Resource != service.ResourceAssets {
				continue
			}
			err := ps.Refresh(ctx, ev)
			var stale *mapsync.StaleSelectionError
			switch {
			case errors.As(err, &stale):
				select {
				case dropped <- stale.ID:
				default:
				}
			case errors.Is(err, mapsync.ErrSessionClosed):
				continue
			case err != nil:
				h.log.Warn("refresh after change failed", "session", ps.ID, "asset", ev.ID, "error", err)
				continue
			}
			notify(changed)
		}
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Select handles a marker click.
func (h *GISHandler) Select(ctx context.Context, in *AssetInput) (*huma.StreamResponse, error) {
	ps, err := h.session(in.Session)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		d, err := ps.SelectFromMap(in.ID)
		var stale *mapsync.StaleSelectionError
		switch {
		case errors.As(err, &stale):
			h.resetForm(sse)
			sse.Error(fmt.Sprintf("Asset %q no longer exists", stale.ID))
			h.patchList(sse, ps)
			return
		case err != nil:
			sse.Error(err.Error())
			return
		}
		signals := h.form.Signals(d.Values())
		signals["editing"] = true
		signals["selected"] = in.ID
		sse.Signals(signals)
		sse.FieldErrors(h.form.Names(), nil)
		sse.Success("")
	}), nil
}

// Draft applies form edits to the draft without touching the registry.
func (h *GISHandler) Draft(ctx context.Context, in *FormInput) (*huma.StreamResponse, error) {
	ps, err := h.session(in.Session)
	if err != nil {
		return nil, err
	}
	signals, err := in.Parse()
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		if err := ps.Edit(signals.Prefixed(signalPrefix, h.form.Names())); err != nil {
			sse.Error(err.Error())
		}
	}), nil
}

// Commit saves the form: create when its ID is new, update otherwise.
func (h *GISHandler) Commit(ctx context.Context, in *FormInput) (*huma.StreamResponse, error) {
	ps, err := h.session(in.Session)
	if err != nil {
		return nil, err
	}
	signals, err := in.Parse()
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		if err := ps.Edit(signals.Prefixed(signalPrefix, h.form.Names())); err != nil {
			sse.Error(err.Error())
			return
		}

		res, err := ps.Commit(sse.Context())
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			sse.FieldErrors(h.form.Names(), verr.ByField())
			sse.Error("Please correct the highlighted fields")
			return
		}
		if err != nil && res.Asset.ID == "" {
			sse.Error(err.Error())
			return
		}

		h.resetForm(sse)
		h.patchList(sse, ps)
		if err != nil {
			sse.Error(fmt.Sprintf("Asset %s is on the map but was not saved: %v", res.Asset.ID, err))
			return
		}
		verb := "updated"
		if res.Created {
			verb = "created"
		}
		sse.Success(fmt.Sprintf("Asset %s %s", res.Asset.ID, verb))
	}), nil
}

// Cancel discards the draft.
func (h *GISHandler) Cancel(ctx context.Context, in *SessionInput) (*huma.StreamResponse, error) {
	ps, err := h.session(in.Session)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		if err := ps.Cancel(); err != nil {
			sse.Error(err.Error())
			return
		}
		h.resetForm(sse)
		sse.Success("")
	}), nil
}

// Delete removes an asset from the page and the registry.
func (h *GISHandler) Delete(ctx context.Context, in *AssetInput) (*huma.StreamResponse, error) {
	ps, err := h.session(in.Session)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		before, _, _ := ps.State()
		removed, err := ps.Delete(sse.Context(), in.ID)
		if after, _, _ := ps.State(); before == mapsync.Editing && after == mapsync.Idle {
			h.resetForm(sse)
		}
		h.patchList(sse, ps)
		switch {
		case err != nil:
			sse.Error(err.Error())
		case !removed:
			sse.Error(fmt.Sprintf("Asset %q no longer exists", in.ID))
		default:
			sse.Success(fmt.Sprintf("Asset %s deleted", in.ID))
		}
	}), nil
}

func (h *GISHandler) resetForm(sse humastar.SSE) {
	signals := h.form.Signals(nil)
	signals["editing"] = false
	signals["selected"] = ""
	sse.Signals(signals)
	sse.FieldErrors(h.form.Names(), nil)
}

func (h *GISHandler) patchList(sse humastar.SSE, ps *PageSession) {
	sse.Patch(h.renderAssetList(ps), "#asset-list")
}

// AssetRow is one line of the asset list.
type AssetRow struct {
	ID        string
	Label     string
	Condition string
	Latitude  float64
	Longitude float64
	Color     string
	Selected  bool
	SelectURL string
	DeleteURL string
}

func (h *GISHandler) renderAssetList(ps *PageSession) string {
	state, d, _ := ps.State()
	assets := ps.Assets()
	items := make([]any, len(assets))
	base := sessionBase(ps.ID)
	for i, a := range assets {
		items[i] = AssetRow{
			ID:        a.ID,
			Label:     mapsync.FormatLabel(a),
			Condition: string(a.Condition),
			Latitude:  a.Latitude,
			Longitude: a.Longitude,
			Color:     mapsync.ConditionColor(a.Condition),
			Selected:  state == mapsync.Editing && d.ID == a.ID,
			SelectURL: base + "/select/" + url.PathEscape(a.ID),
			DeleteURL: base + "/assets/" + url.PathEscape(a.ID),
		}
	}
	return h.RenderList("asset-row", items, "No assets yet", "Fill in the form to register the first asset")
}
