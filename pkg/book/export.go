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

package book

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/humanizer-ai/aui/pkg/auierr"
	"github.com/humanizer-ai/aui/pkg/store"
)

// Format selects an export rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// Export renders a book in the requested format. Pure function over the
// book data model.
func Export(book *store.Book, format Format) (string, error) {
	switch format {
	case FormatMarkdown:
		return exportMarkdown(book), nil
	case FormatHTML:
		return exportHTML(book), nil
	case FormatJSON:
		return exportJSON(book)
	default:
		return "", auierr.New(auierr.InvalidArgs, "unknown export format %q", format)
	}
}

func exportMarkdown(book *store.Book) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", book.Title)
	if book.Description != "" {
		fmt.Fprintf(&b, "*%s*\n\n", book.Description)
	}
	if book.Introduction != "" {
		b.WriteString("## Introduction\n\n")
		b.WriteString(book.Introduction)
		b.WriteString("\n\n")
	}
	for _, chapter := range book.Chapters {
		fmt.Fprintf(&b, "## %s\n\n", chapter.Title)
		b.WriteString(chapter.Content)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "---\n\n_Assembled %s · %d chapters_\n", book.CreatedAt.Format("2006-01-02"), len(book.Chapters))
	return b.String()
}

// paragraphs wraps double-newline-separated text blocks in <p> tags,
// HTML-escaping the content.
func paragraphs(text string) string {
	var b strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		fmt.Fprintf(&b, "    <p>%s</p>\n", html.EscapeString(block))
	}
	return b.String()
}

func exportHTML(book *store.Book) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", html.EscapeString(book.Title))
	b.WriteString("  <style>\n")
	b.WriteString("    body { font-family: Georgia, serif; max-width: 42em; margin: 2em auto; line-height: 1.6; padding: 0 1em; }\n")
	b.WriteString("    h1 { font-size: 2em; } h2 { margin-top: 2em; }\n")
	b.WriteString("    .description { font-style: italic; color: #555; }\n")
	b.WriteString("  </style>\n</head>\n<body>\n")

	fmt.Fprintf(&b, "  <h1>%s</h1>\n", html.EscapeString(book.Title))
	if book.Description != "" {
		fmt.Fprintf(&b, "  <p class=\"description\">%s</p>\n", html.EscapeString(book.Description))
	}
	if book.Introduction != "" {
		b.WriteString("  <section>\n    <h2>Introduction</h2>\n")
		b.WriteString(paragraphs(book.Introduction))
		b.WriteString("  </section>\n")
	}
	for _, chapter := range book.Chapters {
		fmt.Fprintf(&b, "  <section>\n    <h2>%s</h2>\n", html.EscapeString(chapter.Title))
		b.WriteString(paragraphs(chapter.Content))
		b.WriteString("  </section>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func exportJSON(book *store.Book) (string, error) {
	raw, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return "", auierr.Wrap(auierr.Internal, err, "failed to encode book")
	}
	return string(raw), nil
}
