package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"autostory/internal/domain"
)

type captureTransport struct {
	status   int
	body     string
	requests []*http.Request
	bodies   [][]byte
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests = append(t.requests, req)
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		t.bodies = append(t.bodies, data)
	}
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

func newTestClient(transport *captureTransport, apiKey string) *Client {
	return NewClient(Options{
		APIKey:     apiKey,
		Model:      "gemini-2.5-flash",
		HTTPClient: &http.Client{Transport: transport},
		Logger:     zerolog.New(io.Discard),
	})
}

func candidateJSON(parts ...string) string {
	type p struct {
		Text string `json:"text,omitempty"`
	}
	var ps []p
	for _, text := range parts {
		ps = append(ps, p{Text: text})
	}
	payload := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"role": "model", "parts": ps}},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestGenerateNarrativeReturnsDirectText(t *testing.T) {
	transport := &captureTransport{body: candidateJSON("Una historia corta.")}
	client := newTestClient(transport, "key")

	got, err := client.GenerateNarrative(context.Background(), NarrativeRequest{
		UserText: "idea",
		Format:   domain.FormatPostSocial,
		Tone:     domain.ToneInspiracional,
	})
	if err != nil {
		t.Fatalf("GenerateNarrative returned error: %v", err)
	}
	if got != "Una historia corta." {
		t.Fatalf("narrative = %q", got)
	}

	if len(transport.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(transport.requests))
	}
	req := transport.requests[0]
	if req.Header.Get("x-goog-api-key") != "key" {
		t.Fatalf("missing api key header")
	}
	if !strings.Contains(req.URL.Path, "gemini-2.5-flash:generateContent") {
		t.Fatalf("unexpected path %q", req.URL.Path)
	}
}

func TestGenerateNarrativeConcatenatesParts(t *testing.T) {
	transport := &captureTransport{body: candidateJSON("", "Primera parte.", "Segunda parte.")}
	client := newTestClient(transport, "key")

	got, err := client.GenerateNarrative(context.Background(), NarrativeRequest{
		UserText: "idea",
		Format:   domain.FormatResumenCaso,
		Tone:     domain.ToneEducativo,
	})
	if err != nil {
		t.Fatalf("GenerateNarrative returned error: %v", err)
	}
	if got != "Primera parte. Segunda parte." {
		t.Fatalf("narrative = %q, want single-space concatenation", got)
	}
}

func TestGenerateNarrativeNoUsableText(t *testing.T) {
	transport := &captureTransport{body: `{"candidates":[{"content":{"role":"model","parts":[]}}]}`}
	client := newTestClient(transport, "key")

	_, err := client.GenerateNarrative(context.Background(), NarrativeRequest{
		UserText: "idea",
		Format:   domain.FormatPostSocial,
		Tone:     domain.ToneTecnico,
	})
	if !errors.Is(err, domain.ErrNoUsableText) {
		t.Fatalf("err = %v, want ErrNoUsableText", err)
	}
	if errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("no-usable-text must be distinct from transport failure")
	}
}

func TestGenerateNarrativeRequiresAPIKey(t *testing.T) {
	transport := &captureTransport{body: candidateJSON("ignored")}
	client := newTestClient(transport, "")

	_, err := client.GenerateNarrative(context.Background(), NarrativeRequest{
		UserText: "idea",
		Format:   domain.FormatPostSocial,
		Tone:     domain.ToneInspiracional,
	})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
	if len(transport.requests) != 0 {
		t.Fatalf("no request should be issued without a key")
	}
}

func TestGenerateNarrativeSurfacesAPIErrorMessage(t *testing.T) {
	transport := &captureTransport{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"code":429,"message":"quota exhausted"}}`,
	}
	client := newTestClient(transport, "key")

	_, err := client.GenerateNarrative(context.Background(), NarrativeRequest{
		UserText: "idea",
		Format:   domain.FormatPostSocial,
		Tone:     domain.ToneInspiracional,
	})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
	if !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("error lost the upstream message: %v", err)
	}
}

func TestGenerateNarrativeAttachesInlineImage(t *testing.T) {
	transport := &captureTransport{body: candidateJSON("ok")}
	client := newTestClient(transport, "key")
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	if _, err := client.GenerateNarrative(context.Background(), NarrativeRequest{
		UserText:  "idea",
		Format:    domain.FormatPostSocial,
		Tone:      domain.ToneInspiracional,
		ImageJPEG: img,
	}); err != nil {
		t.Fatalf("GenerateNarrative returned error: %v", err)
	}

	var sent generateContentRequest
	if err := json.Unmarshal(transport.bodies[0], &sent); err != nil {
		t.Fatalf("decode sent payload: %v", err)
	}
	parts := sent.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("expected prompt + image parts, got %d", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/jpeg" {
		t.Fatalf("image part malformed: %#v", parts[1])
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
	if err != nil || !bytes.Equal(decoded, img) {
		t.Fatalf("inline data does not round-trip: %v", err)
	}
}

func TestDescribeImageSendsInstructionAndImage(t *testing.T) {
	transport := &captureTransport{body: candidateJSON("Descripción técnica.")}
	client := newTestClient(transport, "key")

	got, err := client.DescribeImage(context.Background(), []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("DescribeImage returned error: %v", err)
	}
	if got != "Descripción técnica." {
		t.Fatalf("caption = %q", got)
	}

	var sent generateContentRequest
	if err := json.Unmarshal(transport.bodies[0], &sent); err != nil {
		t.Fatalf("decode sent payload: %v", err)
	}
	parts := sent.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("expected instruction + image parts, got %d", len(parts))
	}
	if !strings.Contains(parts[0].Text, "descripción técnica y objetiva") {
		t.Fatalf("instruction missing: %q", parts[0].Text)
	}
	if parts[1].InlineData == nil {
		t.Fatalf("image part missing")
	}
}
