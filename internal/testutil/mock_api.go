// Package testutil provides an httptest-backed PokeAPI double for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// PNG is a small payload served for sprite requests.
var PNG = []byte("\x89PNG\r\n\x1a\nfake-sprite")

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Name is a localized name entry.
type Name struct {
	Lang string
	Name string
}

// FlavorText is a localized description entry.
type FlavorText struct {
	Lang string
	Text string
}

// Variety is one pokemon variety of a species.
type Variety struct {
	Name      string
	IsDefault bool
}

// Species describes a pokemon-species document.
type Species struct {
	ID          int
	Name        string
	Names       []Name
	FlavorTexts []FlavorText
	Varieties   []Variety
}

// Pokemon describes a pokemon document. Sprites maps category to URL; a
// missing category is served as null.
type Pokemon struct {
	ID      int
	Name    string
	Sprites map[string]string
}

// MockAPI is a configurable PokeAPI server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	requestCount int
	inFlight     int
	peakInFlight int
	lastHeader   http.Header
}

// NewMockAPI creates and starts a new mock server.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requestCount++
		m.counts[r.URL.Path]++
		m.lastHeader = r.Header.Clone()
		m.inFlight++
		if m.inFlight > m.peakInFlight {
			m.peakInFlight = m.inFlight
		}
		handler, exists := m.handlers[r.URL.Path]
		m.mu.Unlock()

		defer func() {
			m.mu.Lock()
			m.inFlight--
			m.mu.Unlock()
		}()

		if exists {
			handler(w, r)
			return
		}
		http.Error(w, "Not Found", http.StatusNotFound)
	}))

	return m
}

// BaseURL returns the API root, equivalent to https://pokeapi.co/api/v2/.
func (m *MockAPI) BaseURL() string {
	return m.server.URL + "/api/v2/"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.peakInFlight = 0
	m.counts = make(map[string]int)
	m.lastHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON serves v as a 200 JSON document at path.
func (m *MockAPI) SetJSON(path string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal %s: %v", path, err))
	}
	m.SetResponse(path, MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	})
}

// SpeciesURL returns the absolute URL of a species document.
func (m *MockAPI) SpeciesURL(id int) string {
	return fmt.Sprintf("%s/api/v2/pokemon-species/%d/", m.server.URL, id)
}

// SpriteURL returns the absolute URL of a sprite file.
func (m *MockAPI) SpriteURL(name string) string {
	return m.server.URL + SpritePath(name)
}

// SpritePath returns the path a sprite is served under.
func SpritePath(name string) string {
	return "/media/sprites/" + name + ".png"
}

// AddGeneration serves generation/{gen}/ listing the given species ids.
func (m *MockAPI) AddGeneration(gen int, speciesIDs ...int) {
	refs := make([]map[string]string, 0, len(speciesIDs))
	for _, id := range speciesIDs {
		refs = append(refs, map[string]string{
			"name": fmt.Sprintf("species-%d", id),
			"url":  m.SpeciesURL(id),
		})
	}
	m.SetJSON(fmt.Sprintf("/api/v2/generation/%d/", gen), map[string]any{
		"id":              gen,
		"pokemon_species": refs,
	})
}

// AddSpecies serves pokemon-species/{id}/.
func (m *MockAPI) AddSpecies(s Species) {
	names := make([]map[string]any, 0, len(s.Names))
	for _, n := range s.Names {
		names = append(names, map[string]any{
			"language": map[string]string{"name": n.Lang},
			"name":     n.Name,
		})
	}
	flavors := make([]map[string]any, 0, len(s.FlavorTexts))
	for _, f := range s.FlavorTexts {
		flavors = append(flavors, map[string]any{
			"language":    map[string]string{"name": f.Lang},
			"flavor_text": f.Text,
		})
	}
	varieties := make([]map[string]any, 0, len(s.Varieties))
	for _, v := range s.Varieties {
		varieties = append(varieties, map[string]any{
			"is_default": v.IsDefault,
			"pokemon":    map[string]string{"name": v.Name},
		})
	}

	m.SetJSON(fmt.Sprintf("/api/v2/pokemon-species/%d/", s.ID), map[string]any{
		"id":                  s.ID,
		"name":                s.Name,
		"names":               names,
		"flavor_text_entries": flavors,
		"varieties":           varieties,
	})
}

// AddPokemon serves pokemon/{id}/ and pokemon/{name}/.
func (m *MockAPI) AddPokemon(p Pokemon) {
	sprites := map[string]any{
		"back_default":  nil,
		"back_shiny":    nil,
		"front_default": nil,
		"front_shiny":   nil,
	}
	for category, u := range p.Sprites {
		sprites[category] = u
	}

	doc := map[string]any{
		"id":      p.ID,
		"name":    p.Name,
		"sprites": sprites,
	}
	m.SetJSON(fmt.Sprintf("/api/v2/pokemon/%d/", p.ID), doc)
	m.SetJSON(fmt.Sprintf("/api/v2/pokemon/%s/", p.Name), doc)
}

// AddSprite serves PNG at the sprite path for name.
func (m *MockAPI) AddSprite(name string) {
	m.SetResponse(SpritePath(name), MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(PNG),
		Headers:    map[string]string{"Content-Type": "image/png"},
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// CountFor returns the number of requests made for path.
func (m *MockAPI) CountFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// PeakInFlight returns the highest number of requests served concurrently.
func (m *MockAPI) PeakInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peakInFlight
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewConditionalHandler responds 304 when If-None-Match matches etag.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=86400")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
