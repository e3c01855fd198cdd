package humastar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-assets/internal/templates"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"assetid":"a1","assetlatitude":28.5,"editing":true,"n":null}`))
	require.NoError(t, err)

	assert.Equal(t, "a1", s.String("assetid"))
	assert.Equal(t, "28.5", s.String("assetlatitude"))
	assert.Equal(t, "true", s.String("editing"))
	assert.Equal(t, "", s.String("n"))
	assert.Equal(t, "", s.String("missing"))
	assert.True(t, s.Bool("editing"))
	assert.False(t, s.Bool("assetid"))
	assert.True(t, s.Has("n"))
	assert.False(t, s.Has("missing"))

	empty, err := ParseSignals([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseSignals([]byte(`{`))
	assert.Error(t, err)
}

func TestSignalsPrefixed(t *testing.T) {
	s := Signals{"assetid": "a1", "assetinstallationdate": "2021-04-12", "other": "x"}
	got := s.Prefixed("asset", []string{"id", "installationDate", "model"})
	assert.Equal(t, map[string]string{"id": "a1", "installationDate": "2021-04-12"}, got)
}

func TestSignalsInputParse(t *testing.T) {
	in := SignalsInput{RawBody: []byte(`not json`)}
	_, err := in.Parse()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.GetStatus())
}

func TestPaginationLinks(t *testing.T) {
	tests := []struct {
		name string
		page PageBody[int]
		want []string
	}{
		{
			name: "first page",
			page: PageBody[int]{Total: 120, Offset: 0, Limit: 50},
			want: []string{
				`</a?offset=0&limit=50>; rel="first"`,
				`</a?offset=50&limit=50>; rel="next"`,
				`</a?offset=100&limit=50>; rel="last"`,
			},
		},
		{
			name: "middle page",
			page: PageBody[int]{Total: 120, Offset: 50, Limit: 50},
			want: []string{
				`</a?offset=0&limit=50>; rel="first"`,
				`</a?offset=0&limit=50>; rel="prev"`,
				`</a?offset=100&limit=50>; rel="next"`,
				`</a?offset=100&limit=50>; rel="last"`,
			},
		},
		{
			name: "empty",
			page: PageBody[int]{},
			want: []string{
				`</a?offset=0&limit=50>; rel="first"`,
				`</a?offset=0&limit=50>; rel="last"`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.PaginationLinks("/a"))
		})
	}
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("pump 1", []ActionDef{
		{Rel: "delete", Pattern: "/api/v1/assets/%s", Method: http.MethodDelete, Title: "Delete asset"},
	})
	require.Len(t, actions, 1)
	assert.Equal(t, "/api/v1/assets/pump%201", actions[0].Href)
	assert.Equal(t,
		`</api/v1/assets/pump%201>; rel="delete"; method="DELETE"; title="Delete asset"`,
		actions[0].LinkHeader())
}

func TestFormSignalsAndHTML(t *testing.T) {
	f := Form{Prefix: "asset", Inputs: []FormInput{
		{Name: "id", Label: "Asset ID", Input: "text", Required: true},
		{Name: "latitude", Label: "Latitude", Input: "decimal"},
		{Name: "condition", Label: "Condition", Input: "select",
			Options: []SelectOptionData{{Value: "Good", Label: "Good"}}},
	}}

	assert.Equal(t, []string{"id", "latitude", "condition"}, f.Names())
	assert.Equal(t, map[string]any{"assetid": "a1", "assetlatitude": "", "assetcondition": ""},
		f.Signals(map[string]string{"id": "a1"}))

	initial := f.InitialSignals(map[string]any{"editing": false})
	assert.Contains(t, initial, `"fieldErrors":{"condition":"","id":"","latitude":""}`)
	assert.Contains(t, initial, `"editing":false`)

	html := string(f.HTML())
	assert.Contains(t, html, `data-bind:assetid required`)
	assert.Contains(t, html, `inputmode="decimal" data-bind:assetlatitude`)
	assert.Contains(t, html, `<option value="Good">Good</option>`)
	assert.Contains(t, html, `data-text="$fieldErrors.latitude"`)
}

func TestLinkSetTransformer(t *testing.T) {
	links := NewLinkSet()
	cfg := huma.DefaultConfig("test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	mux := http.NewServeMux()
	api := humago.New(mux, cfg)

	type item struct {
		ID string `json:"id"`
	}
	huma.Get(api, "/health", func(ctx context.Context, _ *EmptyInput) (*struct{ Body string }, error) {
		return &struct{ Body string }{Body: "ok"}, nil
	})
	huma.Get(api, "/things", func(ctx context.Context, _ *EmptyInput) (*struct{ Body PageBody[item] }, error) {
		return &struct{ Body PageBody[item] }{Body: PageBody[item]{Total: 3, Limit: 2, Data: []item{{"a"}, {"b"}}}}, nil
	})
	huma.Get(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body item }, error) {
		return &struct{ Body item }{Body: item{in.ID}}, nil
	})
	links.AutoLinks(api, "/health", "gis")

	assert.Contains(t, links.For("/health"), `</things>; rel="things"`)
	assert.Contains(t, links.For("/things"), `</things/{id}>; rel="item"`)
	assert.Contains(t, links.For("/things/{id}"), `</things>; rel="collection"`)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := rec.Header().Values("Link")
	assert.Contains(t, got, `</things/{id}>; rel="item"`)
	assert.Contains(t, got, `</things?offset=2&limit=2>; rel="next"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Values("Link"), `</things/a>; rel="self"`)
}

func TestStreamWritesDatastarEvents(t *testing.T) {
	renderer, err := templates.New("")
	require.NoError(t, err)
	h := Handler{Renderer: renderer}

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("test", "1.0.0"))
	huma.Post(api, "/sse", func(ctx context.Context, _ *EmptyInput) (*huma.StreamResponse, error) {
		return h.Stream(func(sse SSE) {
			sse.Patch("<p>hi</p>", "#list")
			sse.Error("boom")
			sse.FieldErrors([]string{"id", "model"}, map[string]string{"id": "is required"})
			sse.Dispatch("marker-remove", map[string]string{"key": "k1"})
		}), nil
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sse", strings.NewReader("")))
	body := rec.Body.String()

	assert.Contains(t, body, "event: datastar-patch-elements")
	assert.Contains(t, body, "data: selector #list")
	assert.Contains(t, body, "<p>hi</p>")
	assert.Contains(t, body, "event: datastar-patch-signals")
	assert.Contains(t, body, `"error":"boom"`)
	assert.Contains(t, body, `"fieldErrors":{"id":"is required","model":""}`)
	assert.Contains(t, body, "marker-remove")
}

func TestRenderListEmptyState(t *testing.T) {
	renderer, err := templates.New("")
	require.NoError(t, err)

	out := RenderList(renderer, "asset-row", nil, "No assets", "Add one with the form.")
	assert.Contains(t, out, "No assets")
	assert.Contains(t, out, "Add one with the form.")

	opts := RenderSelect(renderer, "Pick", []SelectOptionData{{Value: "Pump", Label: "Pump"}})
	assert.Contains(t, opts, "Pick")
	assert.Contains(t, opts, `value="Pump"`)
}
