package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "Hello World", want: "hello world"},
		{name: "folds crlf", in: "a\r\nb", want: "a b"},
		{name: "trims", in: "  padded  ", want: "padded"},
		{name: "collapses whitespace", in: "a \t b\n\nc", want: "a b c"},
		{name: "strips zero width", in: "a​b", want: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHashText_StableUnderCosmeticChanges(t *testing.T) {
	base := HashText("The quick brown fox")

	variants := []string{
		"the quick brown fox",
		"  The quick brown fox  ",
		"The quick\r\nbrown fox",
		"The​ quick brown fox",
		"THE QUICK BROWN FOX",
	}
	for _, variant := range variants {
		assert.Equal(t, base, HashText(variant), "variant %q", variant)
	}

	// Idempotence: hashing the normalized form matches.
	assert.Equal(t, base, HashText(Normalize("The quick brown fox")))
}

func TestHashContent_ParagraphFiltering(t *testing.T) {
	text := "one two three four five six\n\nshort one\n\nanother paragraph with enough words here"

	result := HashContent(text, Options{})

	// The two-word paragraph is dropped by the default threshold.
	assert.Len(t, result.ParagraphHashes, 2)
	assert.Equal(t, 0, result.ParagraphHashes[0].Position)
	assert.Equal(t, 2, result.ParagraphHashes[1].Position)
	assert.Equal(t, 6, result.ParagraphHashes[0].WordCount)
}

func TestHashContent_LineTruncation(t *testing.T) {
	long := strings.Repeat("x", 150)
	result := HashContent(long, Options{})

	assert.Len(t, result.LineHashes, 1)
	assert.Len(t, result.LineHashes[0].Text, 100)
	assert.Equal(t, HashText(long), result.LineHashes[0].Hash)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{name: "both empty", a: nil, b: nil, want: 1},
		{name: "one empty", a: []string{"h1"}, b: nil, want: 0},
		{name: "identical", a: []string{"h1", "h2"}, b: []string{"h2", "h1"}, want: 1},
		{name: "disjoint", a: []string{"h1"}, b: []string{"h2"}, want: 0},
		{name: "half overlap", a: []string{"h1", "h2"}, b: []string{"h2", "h3"}, want: 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}
