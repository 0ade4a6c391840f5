// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

// stripped renders markdown and returns the visible text.
func stripped(input string, width int) string {
	return ansi.Strip(Markdown(input, DefaultTheme, width))
}

func TestMarkdownEmpty(t *testing.T) {
	if result := Markdown("  \n", DefaultTheme, 80); result != "" {
		t.Errorf("expected empty string for blank input, got %q", result)
	}
}

func TestMarkdownParagraphReflow(t *testing.T) {
	input := "a message typed\nacross several\nlines"
	result := stripped(input, 120)
	if strings.Contains(result, "\n") {
		t.Errorf("expected soft breaks to reflow, got:\n%s", result)
	}
	if !strings.Contains(result, "typed across several") {
		t.Errorf("expected soft break converted to space, got:\n%s", result)
	}
}

func TestMarkdownWrapsToWidth(t *testing.T) {
	input := "This is a message long enough that it has to wrap at the requested width."
	for _, line := range strings.Split(stripped(input, 30), "\n") {
		if ansi.StringWidth(line) > 30 {
			t.Errorf("line exceeds width 30: %q", line)
		}
	}
}

func TestMarkdownParagraphsSeparated(t *testing.T) {
	result := stripped("first\n\nsecond", 80)
	if result != "first\n\nsecond" {
		t.Errorf("got %q, want paragraphs separated by a blank line", result)
	}
}

func TestMarkdownLists(t *testing.T) {
	result := stripped("- one\n- two", 80)
	if result != "- one\n- two" {
		t.Errorf("bullet list: got %q", result)
	}

	result = stripped("3. three\n4. four", 80)
	if result != "3. three\n4. four" {
		t.Errorf("ordered list keeps its start number: got %q", result)
	}
}

func TestMarkdownEmphasisIsStyledNotMarked(t *testing.T) {
	raw := Markdown("some **bold** text", DefaultTheme, 80)
	if strings.Contains(ansi.Strip(raw), "**") {
		t.Errorf("emphasis markers should not appear in output: %q", ansi.Strip(raw))
	}
	if !strings.Contains(raw, "\x1b[") {
		t.Errorf("expected ANSI styling in output, got %q", raw)
	}
}

func TestMarkdownCodeBlockKeepsLines(t *testing.T) {
	input := "```\nline one\n    indented\n```"
	result := stripped(input, 80)
	if result != "line one\n    indented" {
		t.Errorf("code block: got %q", result)
	}
}

func TestMarkdownHighlightedCode(t *testing.T) {
	input := "```go\nfunc main() {}\n```"
	result := stripped(input, 80)
	if !strings.Contains(result, "func main() {}") {
		t.Errorf("highlighted code lost its text: %q", result)
	}
}

func TestMarkdownLinkShowsDestination(t *testing.T) {
	result := stripped("see [the docs](https://example.org/docs)", 80)
	if !strings.Contains(result, "the docs (https://example.org/docs)") {
		t.Errorf("link: got %q", result)
	}

	result = stripped("[https://example.org](https://example.org)", 80)
	if strings.Count(result, "https://example.org") != 1 {
		t.Errorf("link whose label is its destination should print once: %q", result)
	}
}

func TestMarkdownBlockquote(t *testing.T) {
	result := stripped("> quoted\n> text", 80)
	if !strings.HasPrefix(result, "│ ") {
		t.Errorf("blockquote should carry a bar prefix: %q", result)
	}
}

func TestMarkdownTable(t *testing.T) {
	input := "| a | bb |\n|---|----|\n| ccc | d |"
	lines := strings.Split(stripped(input, 80), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, rule, and one row, got %q", lines)
	}
	if !strings.HasPrefix(lines[2], "ccc  d") {
		t.Errorf("row: got %q", lines[2])
	}
	if !strings.HasPrefix(lines[1], "───") {
		t.Errorf("rule: got %q", lines[1])
	}
}

func TestMarkdownHTMLStripped(t *testing.T) {
	result := stripped("hello <b>world</b>", 80)
	if strings.Contains(result, "<b>") || !strings.Contains(result, "world") {
		t.Errorf("inline HTML: got %q", result)
	}
}

func TestPrefixLines(t *testing.T) {
	got := prefixLines("a\nb\nc", "> ", "  ")
	if got != "> a\n  b\n  c" {
		t.Errorf("prefixLines: got %q", got)
	}
}
