package server

import (
	"bytes"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"hookrelay/internal/ui"
)

type TemplateManager struct {
	Templates map[string]*template.Template
	log       *zap.Logger
}

func NewTemplateManager(log *zap.Logger) (*TemplateManager, error) {
	tmpls, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	return &TemplateManager{Templates: tmpls, log: log}, nil
}

func loadTemplates() (map[string]*template.Template, error) {
	tmpls := make(map[string]*template.Template)

	layoutContent, err := ui.Templates.ReadFile("layout.html")
	if err != nil {
		return nil, err
	}

	baseTmpl, err := template.New("layout").Parse(string(layoutContent))
	if err != nil {
		return nil, err
	}

	pages := []string{"index.html"}

	for _, page := range pages {
		pageContent, err := ui.Templates.ReadFile(page)
		if err != nil {
			return nil, err
		}

		pageTmpl, err := baseTmpl.Clone()
		if err != nil {
			return nil, err
		}

		if _, err := pageTmpl.Parse(string(pageContent)); err != nil {
			return nil, err
		}

		tmpls[page] = pageTmpl
	}

	return tmpls, nil
}

// Render executes a page into a buffer first so a template error still
// produces a clean 500.
func (tm *TemplateManager) Render(w http.ResponseWriter, name string, data map[string]any) {
	tmpl, ok := tm.Templates[name]
	if !ok {
		tm.log.Error("Template not found", zap.String("template", name))
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		tm.log.Error("Error executing template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
