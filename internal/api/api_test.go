package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Yates-Labs/lore/internal/config"
	"github.com/Yates-Labs/lore/internal/narrative"
	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/Yates-Labs/lore/internal/rag"
	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T, llm narrative.LLM, stories map[string]string) *fiber.App {
	t.Helper()
	ctx := context.Background()

	embedder, err := rag.NewHashingEmbedder("", 256)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := rag.NewCollection(rag.NewMemoryStore(), embedder)
	if err != nil {
		t.Fatal(err)
	}
	p, err := orchestrator.NewPipelineWith(coll, llm, config.Default())
	if err != nil {
		t.Fatal(err)
	}

	for name, text := range stories {
		title := rag.StoryTitle(name)
		if err := coll.Add(ctx, text, rag.ChunkMetadata{StoryTitle: title}, rag.RecordID(title, 0)); err != nil {
			t.Fatal(err)
		}
	}
	return NewApp(p)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("response is not a JSON object: %s", body)
	}
	return resp.StatusCode, decoded
}

func characterRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/characters", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, nil, nil)

	status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if status != http.StatusOK || body["result"] != "ok" {
		t.Errorf("healthz = %d %v", status, body)
	}
}

func TestGetCharacter_Found(t *testing.T) {
	app := newTestApp(t, &narrative.MockLLM{}, map[string]string{"alice.txt": "Alice met Bob in the garden."})

	status, body := doRequest(t, app, characterRequest(`{"name": "Alice"}`))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["name"] != "Alice" || body["storyTitle"] != "alice" {
		t.Errorf("unexpected character: %v", body)
	}
	if _, ok := body["characterType"]; !ok {
		t.Error("response missing characterType")
	}
}

func TestGetCharacter_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		stories map[string]string
	}{
		{"empty store", nil},
		{"model not-found signal", map[string]string{"alice.txt": "Alice met Bob in the garden."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, &narrative.MockLLM{}, tt.stories)

			status, body := doRequest(t, app, characterRequest(`{"name": "Nonexistent"}`))
			if status != http.StatusNotFound {
				t.Errorf("status = %d, want 404 (body %v)", status, body)
			}
		})
	}
}

func TestGetCharacter_Validation(t *testing.T) {
	app := newTestApp(t, &narrative.MockLLM{}, nil)

	status, body := doRequest(t, app, characterRequest(`{"name": "  "}`))
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", status)
	}
	errs, _ := body["errors"].(map[string]any)
	if _, ok := errs["Name"]; !ok {
		t.Errorf("expected a Name validation error, got %v", body)
	}

	status, _ = doRequest(t, app, characterRequest(`{not json`))
	if status != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", status)
	}
}

func TestGetCharacter_ExtractionFailure(t *testing.T) {
	app := newTestApp(t, narrative.NewMockLLMWithError(errors.New("upstream timeout")), map[string]string{"alice.txt": "Alice met Bob."})

	status, _ := doRequest(t, app, characterRequest(`{"name": "Alice"}`))
	if status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", status)
	}
}

func TestSearch(t *testing.T) {
	app := newTestApp(t, nil, map[string]string{
		"alice.txt": "Alice met Bob in the garden.",
		"sea.txt":   "The captain steered through the storm.",
	})

	status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/search?q=captain+storm&limit=1", nil))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	matches, _ := body["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %v", body["matches"])
	}
	top, _ := matches[0].(map[string]any)
	if top["story_title"] != "sea" {
		t.Errorf("top match = %v, want story sea", top)
	}
}

func TestSearch_Validation(t *testing.T) {
	app := newTestApp(t, nil, nil)

	for _, target := range []string{"/api/search", "/api/search?q=x&limit=-1", "/api/search?q=x&limit=500", "/api/search?q=x&limit=abc"} {
		status, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, target, nil))
		if status != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", target, status)
		}
	}
}

func TestFromDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{orchestrator.ErrNoMatches, http.StatusNotFound},
		{narrative.ErrCharacterNotFound, http.StatusNotFound},
		{rag.ErrEmptyQuery, http.StatusBadRequest},
		{rag.ErrEmbedderMismatch, http.StatusConflict},
		{config.ErrMissingCredential, http.StatusServiceUnavailable},
		{narrative.ErrExtractionFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := FromDomainError(tt.err).Code; got != tt.want {
			t.Errorf("FromDomainError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
