package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

type exportRequest struct {
	Narrative string `json:"narrative"`
	Format    string `json:"format"`
}

// Export renders a client-supplied narrative as a downloadable HTML or PDF
// attachment. The format selector is case-insensitive.
func (a *App) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Narrative) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "narrative is required")
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Format)) {
	case "html":
		html, err := a.Exporter.HTML(req.Narrative)
		if err != nil {
			a.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="historia.html"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(html))
	case "pdf":
		pdf, err := a.Exporter.PDF(r.Context(), req.Narrative)
		if err != nil {
			a.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="historia.pdf"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "format must be pdf or html")
	}
}
