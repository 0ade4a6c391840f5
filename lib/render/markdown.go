// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// minWidth keeps deeply nested content from wrapping one word per
// line.
const minWidth = 10

// wrapBreakpoints are the characters besides spaces a long line may
// be broken after.
const wrapBreakpoints = " ,.;-+|"

var (
	parser     goldmark.Markdown
	parserOnce sync.Once
)

func markdownParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parser
}

// Markdown renders a message body as styled terminal text wrapped to
// width. Soft line breaks reflow; code blocks keep their lines and
// are highlighted when they name a language.
func Markdown(input string, theme Theme, width int) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	document := markdownParser().Parser().Parse(text.NewReader(source))

	m := &markdown{source: source, theme: theme, styles: newStyles()}
	return strings.Join(m.blocks(document, width), "\n\n")
}

// newStyles returns a lipgloss renderer fixed to 256 colors. Output
// always goes to a terminal UI, so the profile is forced rather than
// detected from a possibly absent TTY.
func newStyles() *lipgloss.Renderer {
	styles := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	styles.SetColorProfile(termenv.ANSI256)
	return styles
}

type markdown struct {
	source []byte
	theme  Theme
	styles *lipgloss.Renderer
}

// inlineStyle is the emphasis in effect while rendering inline nodes.
type inlineStyle struct {
	bold, italic, strike bool
}

func (m *markdown) style() lipgloss.Style {
	return m.styles.NewStyle()
}

func (m *markdown) faint(s string) string {
	return m.style().Foreground(m.theme.FaintText).Render(s)
}

// blocks renders each block child of parent.
func (m *markdown) blocks(parent ast.Node, width int) []string {
	var rendered []string
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		if block := m.block(child, max(width, minWidth)); block != "" {
			rendered = append(rendered, block)
		}
	}
	return rendered
}

func (m *markdown) block(node ast.Node, width int) string {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return ansi.Wrap(m.inline(n, inlineStyle{}), width, wrapBreakpoints)

	case *ast.Heading:
		content := ansi.Strip(m.inline(n, inlineStyle{}))
		style := m.style().Bold(true).Foreground(m.theme.NormalText)
		if n.Level <= 2 {
			style = style.Foreground(m.theme.HeaderForeground)
		}
		return ansi.Wrap(style.Render(content), width, wrapBreakpoints)

	case *ast.FencedCodeBlock:
		return m.code(m.lines(n), string(n.Language(m.source)))

	case *ast.CodeBlock:
		return m.code(m.lines(n), "")

	case *ast.Blockquote:
		return prefixLines(strings.Join(m.blocks(n, width-2), "\n"), m.faint("│ "), m.faint("│ "))

	case *ast.List:
		return m.list(n, width)

	case *ast.ThematicBreak:
		return m.style().Foreground(m.theme.BorderColor).Render(strings.Repeat("─", width))

	case *ast.HTMLBlock:
		return m.faint(strings.TrimSpace(stripTags(m.lines(n))))

	case *extast.Table:
		return m.table(n, width)

	default:
		return ansi.Wrap(m.inline(n, inlineStyle{}), width, wrapBreakpoints)
	}
}

// lines joins the raw source lines of a block node.
func (m *markdown) lines(node ast.Node) string {
	var builder strings.Builder
	segments := node.Lines()
	for i := range segments.Len() {
		segment := segments.At(i)
		builder.Write(segment.Value(m.source))
	}
	return builder.String()
}

// code highlights with chroma, falling back to faint text when the
// language is missing or unknown.
func (m *markdown) code(source, language string) string {
	source = strings.TrimRight(source, "\n")
	if language != "" {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, source, language, "terminal256", "monokai"); err == nil {
			return strings.TrimRight(highlighted.String(), "\n")
		}
	}
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lines[i] = m.faint(line)
	}
	return strings.Join(lines, "\n")
}

func (m *markdown) list(list *ast.List, width int) string {
	number := list.Start
	separator := "\n\n"
	if list.IsTight {
		separator = "\n"
	}
	var items []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		bullet := "- "
		if list.IsOrdered() {
			bullet = fmt.Sprintf("%d. ", number)
			number++
		}
		indent := strings.Repeat(" ", len(bullet))
		body := strings.Join(m.blocks(item, width-len(bullet)), separator)
		items = append(items, prefixLines(body, bullet, indent))
	}
	return strings.Join(items, separator)
}

// table renders cells separated by two spaces, each column padded to
// its widest cell, with a rule under the header.
func (m *markdown) table(table *extast.Table, width int) string {
	var rows [][]string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, m.inline(cell, inlineStyle{}))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return ""
	}

	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var lines []string
	for r, row := range rows {
		parts := make([]string, len(row))
		for i, cell := range row {
			parts[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		line := strings.Join(parts, "  ")
		if r == 0 {
			line = m.style().Bold(true).Render(ansi.Strip(line))
		}
		lines = append(lines, ansi.Truncate(line, width, "…"))
		if r == 0 && table.FirstChild().Kind() == extast.KindTableHeader {
			rules := make([]string, len(widths))
			for i, w := range widths {
				rules[i] = strings.Repeat("─", w)
			}
			rule := m.style().Foreground(m.theme.BorderColor).Render(strings.Join(rules, "  "))
			lines = append(lines, ansi.Truncate(rule, width, ""))
		}
	}
	return strings.Join(lines, "\n")
}

// inline renders the inline children of node.
func (m *markdown) inline(node ast.Node, st inlineStyle) string {
	var builder strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		builder.WriteString(m.inlineNode(child, st))
	}
	return builder.String()
}

func (m *markdown) inlineNode(node ast.Node, st inlineStyle) string {
	switch n := node.(type) {
	case *ast.Text:
		rendered := m.text(string(n.Segment.Value(m.source)), st)
		if n.HardLineBreak() {
			return rendered + "\n"
		}
		if n.SoftLineBreak() {
			return rendered + " "
		}
		return rendered

	case *ast.String:
		return m.text(string(n.Value), st)

	case *ast.Emphasis:
		if n.Level >= 2 {
			st.bold = true
		} else {
			st.italic = true
		}
		return m.inline(n, st)

	case *extast.Strikethrough:
		st.strike = true
		return m.inline(n, st)

	case *ast.CodeSpan:
		return m.faint(ansi.Strip(m.inline(n, inlineStyle{})))

	case *ast.Link:
		label := m.inline(n, st)
		if destination := string(n.Destination); destination != "" && destination != ansi.Strip(label) {
			return label + " " + m.faint("("+destination+")")
		}
		return label

	case *ast.AutoLink:
		return m.style().Foreground(m.theme.LinkForeground).Render(string(n.URL(m.source)))

	case *ast.Image:
		return m.faint("[" + ansi.Strip(m.inline(n, st)) + "]")

	case *ast.RawHTML:
		var raw strings.Builder
		for i := range n.Segments.Len() {
			segment := n.Segments.At(i)
			raw.Write(segment.Value(m.source))
		}
		if stripped := stripTags(raw.String()); stripped != "" {
			return m.faint(stripped)
		}
		return ""

	case *extast.TaskCheckBox:
		if n.IsChecked {
			return "[x] "
		}
		return "[ ] "

	default:
		return m.inline(n, st)
	}
}

func (m *markdown) text(s string, st inlineStyle) string {
	return m.style().
		Foreground(m.theme.NormalText).
		Bold(st.bold).
		Italic(st.italic).
		Strikethrough(st.strike).
		Render(s)
}

// prefixLines puts first before the first line of s and rest before
// every other line.
func prefixLines(s, first, rest string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = first + lines[i]
		} else {
			lines[i] = rest + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// stripTags drops everything between angle brackets.
func stripTags(html string) string {
	var builder strings.Builder
	depth := 0
	for _, r := range html {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
