package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
	"unicode/utf8"
)

// SpeciesRef points at one species detail document.
type SpeciesRef struct {
	URL string
}

// Record is the normalized metadata of one species.
type Record struct {
	ID           int               `json:"idx"`
	Slug         string            `json:"slug"`
	Generation   int               `json:"gen"`
	Names        map[string]string `json:"name"`
	Descriptions map[string]string `json:"desc"`
	Forms        []string          `json:"forms"`
}

// Dataset is a list of records sorted ascending by ID with unique IDs.
type Dataset []Record

// TotalForms returns the number of non-default forms across all records.
func (d Dataset) TotalForms() int {
	total := 0
	for _, r := range d {
		total += len(r.Forms)
	}
	return total
}

// Sorted reports whether IDs are strictly increasing.
func (d Dataset) Sorted() bool {
	for i := 1; i < len(d); i++ {
		if d[i-1].ID >= d[i].ID {
			return false
		}
	}
	return true
}

// Canonicalize sorts records by ID and keeps the first record for any
// duplicated ID. It returns the IDs that were dropped.
func Canonicalize(records []Record) (Dataset, []int) {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		return a.ID - b.ID
	})

	out := make(Dataset, 0, len(sorted))
	var dropped []int
	for _, r := range sorted {
		if n := len(out); n > 0 && out[n-1].ID == r.ID {
			dropped = append(dropped, r.ID)
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}

// Encode renders the dataset file: a 4-space indented JSON array with HTML
// characters left as-is and every non-ASCII character written as a \u
// escape. Map keys are sorted, so equal datasets encode to equal bytes.
func Encode(ds Dataset) ([]byte, error) {
	normalized := make(Dataset, len(ds))
	for i, r := range ds {
		if r.Names == nil {
			r.Names = map[string]string{}
		}
		if r.Descriptions == nil {
			r.Descriptions = map[string]string{}
		}
		if r.Forms == nil {
			r.Forms = []string{}
		}
		normalized[i] = r
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}

	return escapeNonASCII(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Decode parses a dataset file.
func Decode(data []byte) (Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return ds, nil
}

// escapeNonASCII rewrites every rune outside printable ASCII as \uXXXX,
// using surrogate pairs above U+FFFF. Valid JSON input only carries such
// runes inside strings, so the result stays valid JSON.
func escapeNonASCII(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for len(src) > 0 {
		c := src[0]
		if c < utf8.RuneSelf && c != 0x7f {
			out = append(out, c)
			src = src[1:]
			continue
		}

		r, size := utf8.DecodeRune(src)
		src = src[size:]
		if r > 0xffff {
			r1, r2 := utf16.EncodeRune(r)
			out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}
