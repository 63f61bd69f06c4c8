package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"autostory/internal/domain"
	"autostory/internal/providers/genai"
	"autostory/internal/worker"
)

// NarrativeGenerator produces the story text from assembled inputs.
type NarrativeGenerator interface {
	GenerateNarrative(ctx context.Context, req genai.NarrativeRequest) (string, error)
}

// ImageDescriber captions a normalized image.
type ImageDescriber interface {
	Describe(ctx context.Context, imageJPEG []byte) (string, error)
}

// ImageNormalizer converts arbitrary image bytes into canonical JPEG.
type ImageNormalizer interface {
	Normalize(ctx context.Context, data []byte) ([]byte, error)
}

// ImageFetcher downloads an image referenced by URL.
type ImageFetcher interface {
	Image(ctx context.Context, imageURL string) ([]byte, error)
}

// VersionStore covers the synchronous datastore operations.
type VersionStore interface {
	AppendMinorRevision(ctx context.Context, storyID, narrative string) (domain.Version, error)
	ListVersions(ctx context.Context, storyID string) ([]domain.NarrativeVersion, error)
}

// StoryPersister receives the fire-and-forget persistence hand-off.
type StoryPersister interface {
	Enqueue(t worker.Task)
}

// Exporter renders narratives for download.
type Exporter interface {
	HTML(narrative string) (string, error)
	PDF(ctx context.Context, narrative string) ([]byte, error)
}

// App is the handler container: every collaborator is injected so tests can
// substitute doubles without a network in sight.
type App struct {
	Logger    zerolog.Logger
	Generator NarrativeGenerator
	Captioner ImageDescriber
	Images    ImageNormalizer
	Fetcher   ImageFetcher
	Store     VersionStore
	Persister StoryPersister
	Exporter  Exporter
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

// fail maps a classified component error onto the HTTP surface. Unknown
// errors deliberately collapse into a generic internal failure so no raw
// cause leaks to the client.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnprocessableImage):
		a.error(w, http.StatusUnprocessableEntity, "unprocessable_image", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrNoUsableText), errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusInternalServerError, "inference_failed", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		a.error(w, http.StatusInternalServerError, "store_unavailable", err.Error())
	case errors.Is(err, domain.ErrExportFailure):
		a.error(w, http.StatusInternalServerError, "export_failed", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: unclassified error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
