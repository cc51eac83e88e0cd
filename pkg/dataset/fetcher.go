package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type localized struct {
	Language struct {
		Name string `json:"name"`
	} `json:"language"`
}

type nameEntry struct {
	localized
	Name string `json:"name"`
}

type flavorEntry struct {
	localized
	FlavorText string `json:"flavor_text"`
}

type varietyEntry struct {
	IsDefault bool `json:"is_default"`
	Pokemon   struct {
		Name string `json:"name"`
	} `json:"pokemon"`
}

type speciesDoc struct {
	ID                int            `json:"id"`
	Name              string         `json:"name"`
	Names             []nameEntry    `json:"names"`
	FlavorTextEntries []flavorEntry  `json:"flavor_text_entries"`
	Varieties         []varietyEntry `json:"varieties"`
}

// Fetcher retrieves and normalizes single species documents.
type Fetcher struct {
	api Getter
}

// NewFetcher creates a fetcher backed by api.
func NewFetcher(api Getter) *Fetcher {
	return &Fetcher{api: api}
}

// Fetch retrieves the species behind ref and normalizes it into a Record
// belonging to generation gen.
func (f *Fetcher) Fetch(ctx context.Context, ref SpeciesRef, gen int) (Record, error) {
	var doc speciesDoc
	if err := f.api.GetJSON(ctx, ref.URL, &doc); err != nil {
		return Record{}, fmt.Errorf("fetch species %s: %w", ref.URL, err)
	}
	return normalize(doc, gen)
}

// normalize maps a species document to a Record. Names keep the last entry
// per locale, descriptions the first, forms every non-default variety in
// source order.
func normalize(doc speciesDoc, gen int) (Record, error) {
	if doc.ID <= 0 || doc.Name == "" {
		return Record{}, fmt.Errorf("%w: id=%d name=%q", ErrInvalidRecord, doc.ID, doc.Name)
	}

	rec := Record{
		ID:           doc.ID,
		Slug:         doc.Name,
		Generation:   gen,
		Names:        make(map[string]string, len(doc.Names)),
		Descriptions: make(map[string]string),
		Forms:        []string{},
	}

	for _, n := range doc.Names {
		rec.Names[locale(n.localized)] = n.Name
	}

	for _, e := range doc.FlavorTextEntries {
		lang := locale(e.localized)
		if _, seen := rec.Descriptions[lang]; seen {
			continue
		}
		rec.Descriptions[lang] = e.FlavorText
	}

	for i, v := range doc.Varieties {
		if v.IsDefault {
			continue
		}
		if v.Pokemon.Name == "" {
			log.Debug().
				Str("component", "species-fetcher").
				Int("species", doc.ID).
				Int("position", i).
				Msg("Variety without pokemon name, skipping")
			continue
		}
		rec.Forms = append(rec.Forms, v.Pokemon.Name)
	}

	return rec, nil
}

func locale(l localized) string {
	return strings.ToLower(l.Language.Name)
}
