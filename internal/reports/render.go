package reports

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		html.WithUnsafe(),
	),
)

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; color: #1f2328; }
table { border-collapse: collapse; }
th, td { border: 1px solid #d0d7de; padding: .3rem .6rem; }
pre { padding: .8rem; overflow-x: auto; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderMarkdown renders a report as a Markdown document. Sections with
// structured data get a JSON block after their content.
func RenderMarkdown(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(r))
	fmt.Fprintf(&b, "- Empresa: `%s`\n", r.CompanyID)
	if r.DepartmentID != "" {
		fmt.Fprintf(&b, "- Departamento: `%s`\n", r.DepartmentID)
	}
	fmt.Fprintf(&b, "- Status: %s\n", r.Status)
	if r.GeneratedAt != nil {
		fmt.Fprintf(&b, "- Gerado em: %s (%d ms)\n", r.GeneratedAt.Format("2006-01-02 15:04"), r.GenerationDurationMs)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "- Erro: %s\n", r.Error)
	}

	for _, sec := range r.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", sec.Title)
		b.WriteString(strings.TrimRight(sec.Content, "\n"))
		b.WriteString("\n")
		if data := bytes.TrimSpace(sec.StructuredData); len(data) > 0 && string(data) != "{}" {
			b.WriteString("\n```json\n")
			b.Write(data)
			b.WriteString("\n```\n")
		}
	}
	return b.String()
}

// RenderHTML renders a report as a standalone HTML page.
func RenderHTML(r *Report) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(RenderMarkdown(r)), &body); err != nil {
		return nil, fmt.Errorf("converting report markdown: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{Title: title(r), Body: template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("executing report template: %w", err)
	}
	return page.Bytes(), nil
}

func title(r *Report) string {
	return fmt.Sprintf("Relatório %s %s a %s",
		strings.ToLower(string(r.Type)),
		r.PeriodStart.Format("2006-01-02"),
		r.PeriodEnd.Format("2006-01-02"))
}
