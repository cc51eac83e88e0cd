package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrInvalidRecord is returned when a species document lacks an id or name.
var ErrInvalidRecord = errors.New("invalid species record")

// Getter is the subset of the API client the dataset stage needs.
// *client.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, ref string, v any) error
}

type generationDoc struct {
	PokemonSpecies []struct {
		URL string `json:"url"`
	} `json:"pokemon_species"`
}

// Resolver lists the species references of a generation.
type Resolver struct {
	api    Getter
	logger zerolog.Logger
}

// NewResolver creates a resolver backed by api.
func NewResolver(api Getter) *Resolver {
	return &Resolver{
		api:    api,
		logger: log.With().Str("component", "generation-resolver").Logger(),
	}
}

// Resolve fetches generation/{gen}/ and returns its species references in
// source order. Retries are left to the transport.
func (r *Resolver) Resolve(ctx context.Context, gen int) ([]SpeciesRef, error) {
	if gen < 1 {
		return nil, fmt.Errorf("generation must be >= 1 (got %d)", gen)
	}

	var doc generationDoc
	if err := r.api.GetJSON(ctx, fmt.Sprintf("generation/%d/", gen), &doc); err != nil {
		return nil, fmt.Errorf("resolve generation %d: %w", gen, err)
	}

	refs := make([]SpeciesRef, 0, len(doc.PokemonSpecies))
	for i, s := range doc.PokemonSpecies {
		if strings.TrimSpace(s.URL) == "" {
			r.logger.Warn().
				Int("generation", gen).
				Int("position", i).
				Msg("Species reference without url, skipping")
			continue
		}
		refs = append(refs, SpeciesRef{URL: s.URL})
	}

	r.logger.Debug().
		Int("generation", gen).
		Int("species", len(refs)).
		Msg("Generation resolved")

	return refs, nil
}
