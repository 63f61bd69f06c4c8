// Package export renders stored narratives as standalone HTML documents
// and derives PDFs from that same HTML.
package export

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"autostory/internal/domain"
)

//go:embed templates/narrative.html
var templateFS embed.FS

var narrativeTmpl = template.Must(template.ParseFS(templateFS, "templates/narrative.html"))

// Engine converts a rendered HTML document to PDF bytes. The production
// implementation shells out to wkhtmltopdf; tests substitute a fake.
type Engine interface {
	Convert(ctx context.Context, html string) ([]byte, error)
}

// Renderer produces the two export representations. PDF output is always
// derived from the exact HTML that the HTML export would return.
type Renderer struct {
	engine Engine
}

func NewRenderer(engine Engine) *Renderer {
	return &Renderer{engine: engine}
}

// HTML renders the narrative into a complete HTML document. Template
// substitution has no expected failure mode for well-formed input; any
// error is still classified so callers never see a raw template error.
func (r *Renderer) HTML(narrative string) (string, error) {
	var buf bytes.Buffer
	if err := narrativeTmpl.Execute(&buf, struct{ Narrative string }{Narrative: narrative}); err != nil {
		return "", fmt.Errorf("%w: render html: %v", domain.ErrExportFailure, err)
	}
	return buf.String(), nil
}

// PDF renders the narrative to HTML and converts it through the engine.
// Engine failures surface with the engine's own message attached.
func (r *Renderer) PDF(ctx context.Context, narrative string) ([]byte, error) {
	html, err := r.HTML(narrative)
	if err != nil {
		return nil, err
	}
	pdf, err := r.engine.Convert(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf conversion: %v", domain.ErrExportFailure, err)
	}
	return pdf, nil
}
