package export

import (
	"bytes"
	"html/template"
	"time"
)

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(pageLayout))

// TemplateData holds data for page template rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	UpdatedAt   time.Time
}

// RenderPageHTML wraps rendered block HTML in a standalone document.
func RenderPageHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pageLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
    table { border-collapse: collapse; }
    th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; }
    .alert { padding: 0.5rem 1rem; border-left: 4px solid #3b82f6; background: #eff6ff; }
    .alert-warning { border-color: #f59e0b; background: #fffbeb; }
    .alert-error { border-color: #ef4444; background: #fef2f2; }
    .alert-success { border-color: #10b981; background: #ecfdf5; }
    .columns { display: flex; gap: 1rem; }
    ul.todo { list-style: none; padding-left: 0; }
    img, video { max-width: 100%; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if not .UpdatedAt.IsZero}}<div class="meta">Updated {{formatDate .UpdatedAt "Jan 2, 2006"}}</div>{{end}}
  <div>{{.ContentHTML}}</div>
</body>
</html>`
