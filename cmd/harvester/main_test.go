package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/pokeapi-harvester/internal/testutil"
)

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no args", nil, ExitInvalidArgs},
		{"help", []string{"help"}, ExitSuccess},
		{"unknown command", []string{"scrape"}, ExitInvalidArgs},
		{"subcommand help", []string{"dataset", "-h"}, ExitSuccess},
		{"unknown flag", []string{"dataset", "-bogus"}, ExitInvalidArgs},
		{"invalid generations", []string{"dataset", "-generations", "0"}, ExitInvalidArgs},
		{"invalid form resolution", []string{"sprites", "-forms", "guess"}, ExitInvalidArgs},
		{"stray argument", []string{"all", "extra"}, ExitInvalidArgs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := run(tt.args, &stderr); got != tt.want {
				t.Errorf("run(%v) = %d, want %d\n%s", tt.args, got, tt.want, stderr.String())
			}
		})
	}
}

func TestRun_SpritesWithoutDataset(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	var stderr bytes.Buffer
	code := run([]string{"sprites", "-base-url", mock.BaseURL(), "-output", t.TempDir()}, &stderr)
	if code != ExitGeneralError {
		t.Errorf("exit code = %d, want %d", code, ExitGeneralError)
	}
	if !strings.Contains(stderr.String(), "load dataset") {
		t.Errorf("expected load error in logs, got:\n%s", stderr.String())
	}
}

func newPokedexMock(t *testing.T) *testutil.MockAPI {
	t.Helper()

	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)

	mock.AddGeneration(1, 3, 1)
	mock.AddSpecies(testutil.Species{
		ID:          1,
		Name:        "bulbasaur",
		Names:       []testutil.Name{{Lang: "en", Name: "Bulbasaur"}, {Lang: "ja", Name: "フシギダネ"}},
		FlavorTexts: []testutil.FlavorText{{Lang: "en", Text: "A strange seed."}, {Lang: "en", Text: "Later text."}},
		Varieties:   []testutil.Variety{{Name: "bulbasaur", IsDefault: true}},
	})
	mock.AddSpecies(testutil.Species{
		ID:        3,
		Name:      "venusaur",
		Names:     []testutil.Name{{Lang: "en", Name: "Venusaur"}},
		Varieties: []testutil.Variety{{Name: "venusaur", IsDefault: true}, {Name: "venusaur-mega"}},
	})

	for _, p := range []testutil.Pokemon{
		{ID: 1, Name: "bulbasaur", Sprites: map[string]string{
			"front_default": mock.SpriteURL("1"),
			"back_default":  mock.SpriteURL("back-1"),
		}},
		{ID: 3, Name: "venusaur", Sprites: map[string]string{"front_default": mock.SpriteURL("3")}},
		{ID: 10033, Name: "venusaur-mega", Sprites: map[string]string{
			"front_default": mock.SpriteURL("10033"),
			"front_shiny":   mock.SpriteURL("missing-shiny"),
		}},
	} {
		mock.AddPokemon(p)
	}
	for _, name := range []string{"1", "back-1", "3", "10033"} {
		mock.AddSprite(name)
	}

	return mock
}

func TestRun_AllEndToEnd(t *testing.T) {
	mock := newPokedexMock(t)
	out := t.TempDir()

	args := []string{"all",
		"-base-url", mock.BaseURL(),
		"-output", out,
		"-generations", "1",
		"-concurrency", "2",
		"-backoff", "1ms",
	}

	var stderr bytes.Buffer
	if code := run(args, &stderr); code != ExitSuccess {
		t.Fatalf("exit code = %d, want 0\n%s", code, stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(out, "data", "pokemon_data.json"))
	if err != nil {
		t.Fatalf("dataset not written: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"slug": "bulbasaur"`) || !strings.Contains(text, `"slug": "venusaur"`) {
		t.Errorf("dataset missing records:\n%s", text)
	}
	if strings.Index(text, `"idx": 1`) > strings.Index(text, `"idx": 3`) {
		t.Error("records not sorted by idx")
	}
	if strings.Contains(text, "フシギダネ") || !strings.Contains(text, `\u30d5\u30b7\u30ae\u30c0\u30cd`) {
		t.Error("non-ASCII names should be written as \\u escapes")
	}
	if strings.Contains(text, "Later text.") {
		t.Error("description should keep the first entry per locale")
	}

	for _, rel := range []string{
		"images/front_default/bulbasaur.png",
		"images/back_default/bulbasaur.png",
		"images/front_default/venusaur.png",
		"images/front_default/venusaur-mega.png",
	} {
		got, err := os.ReadFile(filepath.Join(out, rel))
		if err != nil {
			t.Errorf("%s: %v", rel, err)
			continue
		}
		if !bytes.Equal(got, testutil.PNG) {
			t.Errorf("%s content = %q", rel, got)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "images", "front_shiny", "venusaur-mega.png")); !os.IsNotExist(err) {
		t.Error("404 sprite must not create a file")
	}

	// a second dataset run over the same responses rewrites identical bytes
	if code := run([]string{"dataset", "-base-url", mock.BaseURL(), "-output", out, "-generations", "1"}, &stderr); code != ExitSuccess {
		t.Fatalf("second run exit code = %d\n%s", code, stderr.String())
	}
	again, err := os.ReadFile(filepath.Join(out, "data", "pokemon_data.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("dataset output is not idempotent")
	}
}

func TestRun_SpritesFromExistingDataset(t *testing.T) {
	mock := newPokedexMock(t)
	out := t.TempDir()

	dataset := `[
    {"idx": 1, "slug": "bulbasaur", "gen": 1, "name": {}, "desc": {}, "forms": []}
]`
	if err := os.MkdirAll(filepath.Join(out, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, "data", "pokemon_data.json"), []byte(dataset), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	code := run([]string{"sprites", "-base-url", mock.BaseURL(), "-output", out, "-backoff", "1ms"}, &stderr)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d\n%s", code, stderr.String())
	}

	if _, err := os.Stat(filepath.Join(out, "images", "front_default", "bulbasaur.png")); err != nil {
		t.Errorf("sprite not downloaded: %v", err)
	}
	if mock.CountFor("/api/v2/generation/1/") != 0 {
		t.Error("sprites command must not rebuild the dataset")
	}
}
