package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Format enumerates the narrative formats the API accepts. The literal
// values travel verbatim into the generation prompt and the datastore, so
// they are part of the wire contract.
type Format string

const (
	FormatPostSocial   Format = "Post Social"
	FormatStorytelling Format = "Storytelling de Impacto"
	FormatResumenCaso  Format = "Resumen de Caso"
)

func (f Format) Valid() bool {
	switch f {
	case FormatPostSocial, FormatStorytelling, FormatResumenCaso:
		return true
	}
	return false
}

// Tone enumerates the narrative tones the API accepts.
type Tone string

const (
	ToneInspiracional Tone = "Inspiracional"
	ToneEducativo     Tone = "Educativo"
	ToneTecnico       Tone = "Técnico"
)

func (t Tone) Valid() bool {
	switch t {
	case ToneInspiracional, ToneEducativo, ToneTecnico:
		return true
	}
	return false
}

// Story is the root persisted entity. It is immutable after creation and
// never deleted by this service.
type Story struct {
	ID string
}

// InputRecord captures the inputs that produced a story's first version.
// Created exactly once, alongside the story, and never mutated.
type InputRecord struct {
	StoryID        string
	ImageReference string // original URL or uploaded filename, empty when absent
	UserText       string
	Format         Format
	Tone           Tone
}

// Version is a two-level revision counter. Major identifies a top-level
// generation, minor an incremental edit within it.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// NarrativeVersion is one stored revision of a story's narrative text.
// Versions are append-only. CreatedAt is assigned by the datastore and
// carried through as-is.
type NarrativeVersion struct {
	StoryID   string
	Major     int
	Minor     int
	Narrative string
	CreatedAt string
}

// NewStoryID generates an opaque story token with a human-readable prefix.
// IDs are minted locally, never assigned by the datastore.
func NewStoryID() string {
	u := uuid.New()
	return "sto_" + hex.EncodeToString(u[:])[:12]
}
