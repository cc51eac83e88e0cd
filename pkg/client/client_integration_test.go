//go:build integration

package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/pokeapi-harvester/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(context.Background())
	})

	return client
}

func TestIntegration_CachedRunSkipsNetwork(t *testing.T) {
	redisClient := setupRedisContainer(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.AddGeneration(1, 1, 4, 7)

	cfg := DefaultConfig("pokeapi-harvester-integration/1.0")
	cfg.BaseURL = mock.BaseURL()
	cfg.Redis = redisClient

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	var first, second map[string]any
	if err := c.GetJSON(ctx, "generation/1/", &first); err != nil {
		t.Fatalf("first GetJSON() error = %v", err)
	}
	if err := c.GetJSON(ctx, "generation/1/", &second); err != nil {
		t.Fatalf("second GetJSON() error = %v", err)
	}

	if n := mock.CountFor("/api/v2/generation/1/"); n != 1 {
		t.Errorf("requests = %d, want 1 (second served from Redis)", n)
	}
	if len(second["pokemon_species"].([]any)) != 3 {
		t.Errorf("cached document lost species: %v", second)
	}
}

func TestIntegration_ConditionalRevalidation(t *testing.T) {
	redisClient := setupRedisContainer(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/api/v2/pokemon/25/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"id":25,"name":"pikachu"}`,
		Headers: map[string]string{
			"ETag":    `"p25"`,
			"Expires": time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat),
		},
	})

	cfg := DefaultConfig("pokeapi-harvester-integration/1.0")
	cfg.BaseURL = mock.BaseURL()
	cfg.Redis = redisClient

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	var v map[string]any
	if err := c.GetJSON(ctx, "pokemon/25/", &v); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}

	mock.SetHandler("/api/v2/pokemon/25/", testutil.NewConditionalHandler(`"p25"`, `{"id":25,"name":"raichu"}`))

	if err := c.GetJSON(ctx, "pokemon/25/", &v); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if v["name"] != "pikachu" {
		t.Errorf("name = %v, want cached pikachu after 304", v["name"])
	}
	if mock.LastRequestHeader().Get("If-None-Match") != `"p25"` {
		t.Error("expected If-None-Match on revalidation")
	}
}
