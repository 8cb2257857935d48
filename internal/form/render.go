package form

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
)

//go:embed templates/*.html
var tplFS embed.FS

var tpl = template.Must(template.ParseFS(tplFS, "templates/*.html"))

// Mode selects which rendering a form produces.
type Mode string

const (
	ModeEdit    Mode = "edit"
	ModeDisplay Mode = "display"
)

type optionView struct {
	Value    string
	Selected bool
}

type fieldView struct {
	Name        string
	Label       string
	HelpText    string
	Placeholder string
	Required    bool
	FieldType   fieldtype.Type
	State       State
	Widget      string
	InputType   string
	Step        string
	Accept      string
	Target      string
	Prefix      string
	Suffix      string
	Value       string
	Options     []optionView
	Display     string
	Href        template.URL
	Tags        []string
	Error       string
}

type pageView struct {
	EntityType metadata.EntityType
	EntityID   string
	Valid      bool
	Fields     []fieldView
}

// RenderEdit renders one input control per field.
func (f *Form) RenderEdit(entityType metadata.EntityType, entityID string) (string, error) {
	return f.render("edit", entityType, entityID)
}

// RenderDisplay renders the read-only view of every field.
func (f *Form) RenderDisplay(entityType metadata.EntityType, entityID string) (string, error) {
	return f.render("display", entityType, entityID)
}

// Render dispatches on mode.
func (f *Form) Render(mode Mode, entityType metadata.EntityType, entityID string) (string, error) {
	switch mode {
	case ModeEdit, "":
		return f.RenderEdit(entityType, entityID)
	case ModeDisplay:
		return f.RenderDisplay(entityType, entityID)
	}
	return "", fmt.Errorf("unknown render mode %q", mode)
}

func (f *Form) render(name string, entityType metadata.EntityType, entityID string) (string, error) {
	page := pageView{EntityType: entityType, EntityID: entityID, Valid: f.Valid()}
	for _, s := range f.fields {
		page.Fields = append(page.Fields, f.view(s))
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, page); err != nil {
		return "", fmt.Errorf("render %s form: %w", name, err)
	}
	return buf.String(), nil
}

func (f *Form) view(s *FieldState) fieldView {
	def := s.Definition
	c := s.Control
	v := fieldView{
		Name:        def.Name,
		Label:       def.Label,
		HelpText:    def.HelpText,
		Placeholder: def.PlaceholderText,
		Required:    def.IsRequired,
		FieldType:   def.FieldType,
		State:       s.State,
		Widget:      c.Widget,
		InputType:   c.InputType,
		Step:        c.Step,
		Accept:      c.Accept,
		Target:      c.Target,
		Value:       inputValue(s.Raw),
		Display:     s.display(f.validator),
	}
	if v.InputType == "" {
		v.InputType = "text"
	}
	switch c.Adornment {
	case "currency":
		v.Prefix = f.validator.CurrencyFor(def)
	case "":
	default:
		v.Suffix = c.Adornment
	}
	if def.FieldType.IsSelect() {
		chosen := map[string]bool{}
		for _, o := range selection(s.Raw) {
			chosen[o] = true
		}
		if raw, ok := s.Raw.(string); ok {
			chosen[raw] = true
		}
		for _, o := range def.SelectOptions {
			v.Options = append(v.Options, optionView{Value: o, Selected: chosen[o]})
		}
	}
	if s.Error != nil {
		v.Error = s.Error.Message
	}

	if s.Typed != nil {
		switch def.FieldType {
		case fieldtype.SelectMultiCheckbox:
			v.Tags, _ = s.Typed.([]string)
		case fieldtype.Email:
			v.Href = template.URL("mailto:" + v.Display)
		case fieldtype.Phone:
			v.Href = template.URL("tel:" + strings.ReplaceAll(v.Display, " ", ""))
		case fieldtype.URL:
			v.Href = template.URL(v.Display)
		}
	}
	return v
}

func inputValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return fmt.Sprint(raw)
}
