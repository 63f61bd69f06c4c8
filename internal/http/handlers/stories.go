package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"autostory/internal/domain"
	"autostory/internal/providers/genai"
	"autostory/internal/textproc"
	"autostory/internal/worker"
)

const maxUploadBytes = 15 << 20

type storyResponse struct {
	StoryID   string `json:"story_id"`
	Narrative string `json:"narrative"`
}

type editRequest struct {
	StoryID   string `json:"story_id"`
	Narrative string `json:"narrative"`
}

type editResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Message string `json:"message"`
}

type versionPayload struct {
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Narrative string `json:"narrative"`
	CreatedAt string `json:"created_at"`
}

// CreateStory runs the generation pipeline: validate, normalize inputs,
// transform the image, caption it, generate the narrative, respond. The
// durable write is handed to the persister after the response is already
// on its way; client-visible success never waits on storage.
func (a *App) CreateStory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}

	texto := r.FormValue("texto")
	formato := domain.Format(r.FormValue("formato"))
	tono := domain.Tone(r.FormValue("tono"))
	imageURL := strings.TrimSpace(r.FormValue("image_url"))

	if !formato.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("formato %q no permitido", string(formato)))
		return
	}
	if !tono.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("tono %q no permitido", string(tono)))
		return
	}

	var (
		raw      []byte
		imageRef string
	)
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		raw, err = io.ReadAll(file)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "could not read image upload")
			return
		}
		imageRef = header.Filename
	} else if !errors.Is(err, http.ErrMissingFile) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid image upload")
		return
	}

	ctx := r.Context()

	if len(raw) == 0 && imageURL != "" {
		fetched, err := a.Fetcher.Image(ctx, imageURL)
		if err != nil {
			a.fail(w, err)
			return
		}
		raw = fetched
		imageRef = imageURL
	}

	if len(raw) == 0 && strings.TrimSpace(texto) == "" {
		a.error(w, http.StatusBadRequest, "bad_request",
			"Debes enviar una imagen o un texto para generar una historia.")
		return
	}

	var caption string
	if len(raw) > 0 {
		normalized, err := a.Images.Normalize(ctx, raw)
		if err != nil {
			a.fail(w, err)
			return
		}
		caption, err = a.Captioner.Describe(ctx, normalized)
		if err != nil {
			a.fail(w, err)
			return
		}
	}

	narrative, err := a.Generator.GenerateNarrative(ctx, genai.NarrativeRequest{
		UserText: textproc.Normalize(texto),
		Format:   formato,
		Tone:     tono,
		Caption:  caption,
	})
	if err != nil {
		a.fail(w, err)
		return
	}

	storyID := domain.NewStoryID()
	a.Persister.Enqueue(worker.Task{
		Record: domain.InputRecord{
			StoryID:        storyID,
			ImageReference: imageRef,
			UserText:       texto,
			Format:         formato,
			Tone:           tono,
		},
		Narrative: narrative,
	})

	a.json(w, http.StatusOK, storyResponse{StoryID: storyID, Narrative: narrative})
}

// SaveEdit appends a minor revision to an existing story.
func (a *App) SaveEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.StoryID) == "" || strings.TrimSpace(req.Narrative) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "story_id and narrative are required")
		return
	}

	version, err := a.Store.AppendMinorRevision(r.Context(), req.StoryID, req.Narrative)
	if err != nil {
		a.fail(w, err)
		return
	}

	a.json(w, http.StatusOK, editResponse{
		Status:  "ok",
		Version: version.String(),
		Message: "Versión guardada correctamente",
	})
}

// ListVersions returns every stored revision of a story, newest first.
func (a *App) ListVersions(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "id")
	if storyID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "story id required")
		return
	}

	versions, err := a.Store.ListVersions(r.Context(), storyID)
	if err != nil {
		a.fail(w, err)
		return
	}

	payload := make([]versionPayload, 0, len(versions))
	for _, v := range versions {
		payload = append(payload, versionPayload{
			Major:     v.Major,
			Minor:     v.Minor,
			Narrative: v.Narrative,
			CreatedAt: v.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"versions": payload})
}
