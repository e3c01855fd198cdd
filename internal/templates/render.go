// Package templates renders the HTML pages and the fragments sent over
// Datastar SSE.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
)

//go:embed pages/*.html fragments/*.html
var embedded embed.FS

var funcMap = template.FuncMap{
	// dict builds a map from key-value pairs for nested templates.
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	"conditionClass": func(c any) string {
		return fmt.Sprintf("condition-%v", c)
	},
}

// Renderer manages page and fragment templates.
type Renderer struct {
	mu        sync.RWMutex
	templates *template.Template
	dir       string
}

// New parses the built-in templates. When dir is non-empty and holds a
// pages/ or fragments/ directory, templates found there replace the built-in
// ones with the same name.
func New(dir string) (*Renderer, error) {
	r := &Renderer{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload parses the templates again (useful for dev hot-reload).
func (r *Renderer) Reload() error {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(embedded, "pages/*.html", "fragments/*.html")
	if err != nil {
		return err
	}
	if r.dir != "" {
		for _, sub := range []string{"pages", "fragments"} {
			pattern := filepath.Join(r.dir, sub, "*.html")
			if matches, _ := filepath.Glob(pattern); len(matches) > 0 {
				if tmpl, err = tmpl.ParseFS(os.DirFS(r.dir), sub+"/*.html"); err != nil {
					return err
				}
			}
		}
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()
	return nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates.ExecuteTemplate(buf, name, data)
}

// MustRender renders a template and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Names lists the defined template names.
func (r *Renderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, t := range r.templates.Templates() {
		if t.Name() != "" {
			names = append(names, t.Name())
		}
	}
	return names
}

