package export

import (
	"context"
	"strings"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
)

// WkhtmltopdfEngine converts HTML to PDF through the wkhtmltopdf binary.
type WkhtmltopdfEngine struct{}

// NewWkhtmltopdfEngine configures the engine. binPath overrides binary
// discovery when set; otherwise the wrapper falls back to PATH lookup.
func NewWkhtmltopdfEngine(binPath string) *WkhtmltopdfEngine {
	if binPath != "" {
		wkhtmltopdf.SetPath(binPath)
	}
	return &WkhtmltopdfEngine{}
}

func (e *WkhtmltopdfEngine) Convert(ctx context.Context, html string) ([]byte, error) {
	gen, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, err
	}
	gen.AddPage(wkhtmltopdf.NewPageReader(strings.NewReader(html)))
	if err := gen.CreateContext(ctx); err != nil {
		return nil, err
	}
	return gen.Bytes(), nil
}
