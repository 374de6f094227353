package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006/01/02 15:04")
		},
		"sortIcon": func(active bool, dir any) string {
			if !active {
				return "↕"
			}
			if fmt.Sprint(dir) == "asc" {
				return "↑"
			}
			return "↓"
		},
		"lower": strings.ToLower,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Fragment executes a partial into a string so it can be pushed to the
// browser outside a full page response.
func (e *Engine) Fragment(name string, data any) (template.HTML, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var b strings.Builder
	if err := e.templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("fragment %s: %w", name, err)
	}
	// Output of html/template is already escaped.
	return template.HTML(b.String()), nil
}
