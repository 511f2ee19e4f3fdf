// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hash provides normalized content hashing for archive passages.
//
// Hashes are computed over a canonical form of the text so that cosmetic
// differences (line endings, case, zero-width characters, whitespace runs)
// produce identical fingerprints. Paragraph and line hashes feed the
// similarity helpers used by deduplication and harvest filtering.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Options controls which paragraphs and lines are fingerprinted.
type Options struct {
	// MinParagraphWords drops paragraphs shorter than this many words.
	MinParagraphWords int

	// MinLineChars drops lines shorter than this many characters.
	MinLineChars int

	// MaxLineTextLength truncates the recorded line text.
	MaxLineTextLength int
}

// SetDefaults applies the default thresholds.
func (o *Options) SetDefaults() {
	if o.MinParagraphWords == 0 {
		o.MinParagraphWords = 5
	}
	if o.MinLineChars == 0 {
		o.MinLineChars = 10
	}
	if o.MaxLineTextLength == 0 {
		o.MaxLineTextLength = 100
	}
}

// ParagraphHash fingerprints one paragraph of a document.
type ParagraphHash struct {
	Hash      string `json:"hash"`
	Position  int    `json:"position"`
	Length    int    `json:"length"`
	WordCount int    `json:"word_count"`
}

// LineHash fingerprints one line of a document.
type LineHash struct {
	Hash     string `json:"hash"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// Stats summarizes a hashed document.
type Stats struct {
	Paragraphs int `json:"paragraphs"`
	Lines      int `json:"lines"`
	Words      int `json:"words"`
	Chars      int `json:"chars"`
}

// ContentHashes is the result of HashContent.
type ContentHashes struct {
	ParagraphHashes []ParagraphHash `json:"paragraph_hashes"`
	LineHashes      []LineHash      `json:"line_hashes"`
	Stats           Stats           `json:"stats"`
}

var (
	zeroWidthRe  = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{2060}\x{FEFF}]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	paragraphRe  = regexp.MustCompile(`\n{2,}`)
)

// Normalize canonicalizes text for hashing: NFC, zero-width stripped, line
// endings folded to \n, trimmed, lowercased, whitespace runs collapsed.
func Normalize(text string) string {
	s := norm.NFC.String(text)
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return s
}

// HashText returns the hex SHA-256 of the normalized text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// HashContent fingerprints every qualifying paragraph and line of text.
// Positions are 0-based and refer to the paragraph/line index before
// filtering, so hashes stay aligned with the source document.
func HashContent(text string, opts Options) ContentHashes {
	opts.SetDefaults()

	// Fold line endings before splitting so positions are stable across
	// CRLF/LF variants. Normalization of each unit happens inside HashText.
	folded := strings.ReplaceAll(text, "\r\n", "\n")
	folded = strings.ReplaceAll(folded, "\r", "\n")

	result := ContentHashes{
		ParagraphHashes: []ParagraphHash{},
		LineHashes:      []LineHash{},
	}

	paragraphs := paragraphRe.Split(folded, -1)
	for i, p := range paragraphs {
		wc := WordCount(p)
		if wc < opts.MinParagraphWords {
			continue
		}
		result.ParagraphHashes = append(result.ParagraphHashes, ParagraphHash{
			Hash:      HashText(p),
			Position:  i,
			Length:    len(p),
			WordCount: wc,
		})
	}

	lines := strings.Split(folded, "\n")
	for i, line := range lines {
		if len(line) < opts.MinLineChars {
			continue
		}
		recorded := line
		if len(recorded) > opts.MaxLineTextLength {
			recorded = recorded[:opts.MaxLineTextLength]
		}
		result.LineHashes = append(result.LineHashes, LineHash{
			Hash:     HashText(line),
			Position: i,
			Text:     recorded,
		})
	}

	result.Stats = Stats{
		Paragraphs: len(result.ParagraphHashes),
		Lines:      len(result.LineHashes),
		Words:      WordCount(folded),
		Chars:      len(folded),
	}
	return result
}

// Similarity computes the Jaccard index over two hash sets.
// Both empty yields 1; exactly one empty yields 0.
func Similarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, h := range a {
		setA[h] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, h := range b {
		setB[h] = struct{}{}
	}

	intersection := 0
	for h := range setA {
		if _, ok := setB[h]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}
