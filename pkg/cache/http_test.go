package cache

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestResponseToEntry(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Cache-Control": []string{"public, max-age=3600"},
			"Last-Modified": []string{time.Now().Add(-time.Hour).Format(http.TimeFormat)},
			"Etag":          []string{`W/"pikachu"`},
		},
		Body: io.NopCloser(bytes.NewReader([]byte(`{"id":25}`))),
	}

	entry, err := ResponseToEntry(resp)
	if err != nil {
		t.Fatalf("ResponseToEntry() error = %v", err)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"id":25}` {
		t.Errorf("restored body = %q, want original", body)
	}
	if string(entry.Data) != `{"id":25}` {
		t.Errorf("Data = %q", entry.Data)
	}
	if entry.ETag != `W/"pikachu"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if entry.LastModified.IsZero() {
		t.Error("LastModified not parsed")
	}
	if ttl := entry.TTL(); ttl < 59*time.Minute || ttl > time.Hour {
		t.Errorf("TTL() = %v, want about 1h", ttl)
	}
}

func TestResponseToEntry_Nil(t *testing.T) {
	if _, err := ResponseToEntry(nil); err == nil {
		t.Error("expected error for nil response")
	}
}

func TestFreshUntil(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		headers http.Header
		want    time.Time
	}{
		{
			name:    "max-age wins over expires",
			headers: http.Header{"Cache-Control": []string{"public, max-age=60"}, "Expires": []string{now.Add(time.Hour).Format(http.TimeFormat)}},
			want:    now.Add(time.Minute),
		},
		{
			name:    "no-store",
			headers: http.Header{"Cache-Control": []string{"no-store"}},
			want:    now,
		},
		{
			name:    "expires header",
			headers: http.Header{"Expires": []string{now.Add(time.Hour).Format(http.TimeFormat)}},
			want:    now.Add(time.Hour),
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{now.Add(-time.Hour).Format(http.TimeFormat)}},
			want:    now,
		},
		{
			name:    "invalid expires",
			headers: http.Header{"Expires": []string{"soon"}},
			want:    now.Add(DefaultTTL),
		},
		{
			name:    "no freshness information",
			headers: http.Header{},
			want:    now.Add(DefaultTTL),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := freshUntil(tt.headers, now)
			if diff := got.Sub(tt.want); diff < -time.Second || diff > time.Second {
				t.Errorf("freshUntil() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	entry := &CacheEntry{
		Data:       []byte(`{"id":1}`),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
	}

	resp := EntryToResponse(entry, nil)
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(body) != `{"id":1}` {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Error("X-Cache header not set")
	}
	if entry.Headers.Get("X-Cache") != "" {
		t.Error("cached headers must not be mutated")
	}
}

func TestShouldMakeConditionalRequest(t *testing.T) {
	tests := []struct {
		name  string
		entry *CacheEntry
		want  bool
	}{
		{"nil entry", nil, false},
		{"etag", &CacheEntry{ETag: `"abc"`}, true},
		{"last modified", &CacheEntry{LastModified: time.Now()}, true},
		{"no validator", &CacheEntry{Data: []byte("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldMakeConditionalRequest(tt.entry); got != tt.want {
				t.Errorf("ShouldMakeConditionalRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	lastMod := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		entry      *CacheEntry
		wantHeader string
		wantValue  string
	}{
		{"etag", &CacheEntry{ETag: `"abc"`}, "If-None-Match", `"abc"`},
		{"last modified", &CacheEntry{LastModified: lastMod}, "If-Modified-Since", "Mon, 01 Jan 2024 12:00:00 GMT"},
		{"prefer etag", &CacheEntry{ETag: `"abc"`, LastModified: lastMod}, "If-None-Match", `"abc"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "https://pokeapi.co/api/v2/pokemon/1/", nil)
			AddConditionalHeaders(req, tt.entry)
			if got := req.Header.Get(tt.wantHeader); got != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantHeader, got, tt.wantValue)
			}
		})
	}

	// nil inputs must not panic
	AddConditionalHeaders(nil, &CacheEntry{ETag: "x"})
	AddConditionalHeaders(&http.Request{Header: http.Header{}}, nil)
}
