// form.go renders Datastar-bound HTML form groups from a field list.
//
//	text    → <input type="text">
//	decimal → <input type="text" inputmode="decimal">
//	date    → <input type="date">
//	select  → <select> with options
//
// Every input binds to Prefix+name and shows $fieldErrors.<name> beneath it.
package humastar

import (
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"strings"
)

// FormInput describes one form control.
type FormInput struct {
	Name     string
	Label    string
	Input    string
	Options  []SelectOptionData
	Required bool
}

// Form is a set of inputs bound to signals sharing one prefix.
type Form struct {
	Prefix string
	Inputs []FormInput
}

// SignalName joins a prefix and a field name into a Datastar signal name.
// Datastar lowercases attribute keys, so the result is lowercase.
func SignalName(prefix, name string) string {
	return strings.ToLower(prefix + name)
}

// Names returns the field names in order.
func (f Form) Names() []string {
	names := make([]string, len(f.Inputs))
	for i, in := range f.Inputs {
		names[i] = in.Name
	}
	return names
}

// Signals maps each field's signal to its value in values (or "").
func (f Form) Signals(values map[string]string) map[string]any {
	out := make(map[string]any, len(f.Inputs))
	for _, in := range f.Inputs {
		out[SignalName(f.Prefix, in.Name)] = values[in.Name]
	}
	return out
}

// InitialSignals returns the data-signals JSON for a blank form plus extra
// UI state.
func (f Form) InitialSignals(extra map[string]any) string {
	signals := f.Signals(nil)
	errs := make(map[string]any, len(f.Inputs))
	for _, in := range f.Inputs {
		errs[in.Name] = ""
	}
	signals["fieldErrors"] = errs
	for k, v := range extra {
		signals[k] = v
	}
	b, _ := json.Marshal(signals)
	return string(b)
}

// HTML renders the form groups.
func (f Form) HTML() template.HTML {
	var b strings.Builder
	for _, in := range f.Inputs {
		signal := SignalName(f.Prefix, in.Name)
		b.WriteString(`<div class="form-group">`)
		fmt.Fprintf(&b, "\n    <label for=%q>%s</label>\n", signal, html.EscapeString(in.Label))
		switch in.Input {
		case "select":
			renderSelect(&b, signal, in)
		case "decimal":
			renderInput(&b, signal, `type="text" inputmode="decimal"`, in.Required)
		case "date":
			renderInput(&b, signal, `type="date"`, in.Required)
		default:
			renderInput(&b, signal, `type="text"`, in.Required)
		}
		fmt.Fprintf(&b, "    <span class=\"field-error\" data-show=\"$fieldErrors.%[1]s\" data-text=\"$fieldErrors.%[1]s\"></span>\n", in.Name)
		b.WriteString("</div>\n")
	}
	return template.HTML(b.String())
}

func renderInput(b *strings.Builder, signal, attrs string, required bool) {
	fmt.Fprintf(b, `    <input id=%q %s data-bind:%s`, signal, attrs, signal)
	if required {
		b.WriteString(` required`)
	}
	b.WriteString(">\n")
}

func renderSelect(b *strings.Builder, signal string, in FormInput) {
	fmt.Fprintf(b, `    <select id=%q data-bind:%s`, signal, signal)
	if in.Required {
		b.WriteString(` required`)
	}
	b.WriteString(">\n        <option value=\"\">Select…</option>\n")
	for _, o := range in.Options {
		fmt.Fprintf(b, "        <option value=%q>%s</option>\n", html.EscapeString(o.Value), html.EscapeString(o.Label))
	}
	b.WriteString("    </select>\n")
}
