// Package parser extracts frontmatter, wikilinks, and tags from Markdown content.
package parser

import (
	"bytes"
	"path"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	orderedRe  = regexp.MustCompile(`^\d+[.)]\s`)
	headingRe  = regexp.MustCompile(`^#{1,6}\s`)
)

const noteExt = ".md"

// Link is one wikilink occurrence. Target is the note path as written in the
// link, which the index matches against existing notes; Line and Col are
// 1-based positions in the whole file.
type Link struct {
	Target string
	Raw    string
	Line   int
	Col    int
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []Link
	Tags        []string
	Title       string
	Created     time.Time
}

// Targets returns the distinct link targets in order of first appearance.
func (r *Result) Targets() []string {
	seen := make(map[string]struct{}, len(r.Links))
	var out []string
	for _, l := range r.Links {
		if _, ok := seen[l.Target]; ok {
			continue
		}
		seen[l.Target] = struct{}{}
		out = append(out, l.Target)
	}
	return out
}

// Parse extracts frontmatter, body, wikilinks, and tags from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	// body is always a suffix of data, so its offset maps link positions
	// back onto whole-file coordinates.
	offset := len(data) - len(body)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(string(data), offset),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
		Created:     deriveCreated(fm),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: the whole file is body.
		return nil, string(data)
	}

	return fm, body
}

// extractLinks returns every wikilink occurrence in content[offset:], with
// positions measured against the whole content. Links inside fenced code
// blocks and code spans are not links.
func extractLinks(content string, offset int) []Link {
	matches := wikilinkRe.FindAllStringSubmatchIndex(maskCode(content[offset:]), -1)
	var out []Link
	for _, m := range matches {
		raw := content[offset+m[2] : offset+m[3]]
		target := ResolveTarget(raw)
		if target == "" {
			continue
		}
		line, col := position(content, offset+m[0])
		out = append(out, Link{Target: target, Raw: raw, Line: line, Col: col})
	}
	return out
}

// maskCode blanks fenced code blocks and inline code spans byte for byte,
// keeping newlines so offsets into the result match offsets into s.
func maskCode(s string) string {
	out := []byte(s)
	var fence string
	pos := 0
	for _, line := range strings.SplitAfter(s, "\n") {
		start := pos
		pos += len(line)

		trimmed := strings.TrimLeft(line, " ")
		if len(line)-len(trimmed) <= 3 {
			if marker := fenceMarker(trimmed); marker != "" {
				switch {
				case fence == "":
					fence = marker
					blank(out[start:pos])
					continue
				case marker[0] == fence[0] && len(marker) >= len(fence) &&
					strings.TrimSpace(trimmed[len(marker):]) == "":
					fence = ""
					blank(out[start:pos])
					continue
				}
			}
		}
		if fence != "" {
			blank(out[start:pos])
			continue
		}
		maskSpans(out[start:pos])
	}
	return string(out)
}

// fenceMarker returns the run of three or more backticks or tildes that
// opens line, or "".
func fenceMarker(line string) string {
	if line == "" || (line[0] != '`' && line[0] != '~') {
		return ""
	}
	n := 0
	for n < len(line) && line[n] == line[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	return line[:n]
}

// maskSpans blanks every code span of a single line. A backtick run opens a
// span closed by the next run of the same length.
func maskSpans(line []byte) {
	runAt := func(i int) int {
		n := 0
		for i+n < len(line) && line[i+n] == '`' {
			n++
		}
		return n
	}
	for i := 0; i < len(line); {
		if line[i] != '`' {
			i++
			continue
		}
		n := runAt(i)
		closed := false
		for j := i + n; j < len(line); {
			if line[j] != '`' {
				j++
				continue
			}
			m := runAt(j)
			if m == n {
				blank(line[i : j+m])
				i = j + m
				closed = true
				break
			}
			j += m
		}
		if !closed {
			i += n
		}
	}
}

func blank(b []byte) {
	for i, c := range b {
		if c != '\n' && c != '\r' {
			b[i] = ' '
		}
	}
}

func position(content string, at int) (int, int) {
	prefix := content[:at]
	line := strings.Count(prefix, "\n") + 1
	col := at - strings.LastIndex(prefix, "\n")
	return line, col
}

// ResolveTarget normalises a raw wikilink target to a note path: aliases,
// heading and block suffixes are dropped and ".md" appended. The result may
// name a note anywhere in the vault by its base name.
// It returns "" for links that only address a heading of the current note.
func ResolveTarget(raw string) string {
	target := raw
	if i := strings.Index(target, "|"); i >= 0 {
		target = target[:i]
	}
	if i := strings.IndexAny(target, "#^"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(strings.ReplaceAll(target, `\`, "/"))
	if target == "" {
		return ""
	}
	target = strings.TrimPrefix(path.Clean("/"+target), "/")
	if target == "" {
		return ""
	}
	if !strings.HasSuffix(target, noteExt) {
		target += noteExt
	}
	return target
}

// NameKey is the case-folded base name of a note path without its
// extension, the key a bare [[name]] link matches on.
func NameKey(p string) string {
	return strings.ToLower(strings.TrimSuffix(path.Base(p), noteExt))
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if raw, ok := fm["tags"].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					add(s)
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

var createdLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}

// deriveCreated reads the frontmatter "created" field. Zero when absent or
// unparseable.
func deriveCreated(fm map[string]interface{}) time.Time {
	switch v := fm["created"].(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range createdLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// BlockAt returns the Markdown block enclosing the 1-based line: a list item
// with its more-indented continuation lines, a heading, or otherwise the
// surrounding paragraph. start and end are 1-based and inclusive; ok is false
// when line is out of range or blank.
func BlockAt(content string, line int) (start, end int, text string, ok bool) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if line < 1 || line > len(lines) || isBlank(lines[line-1]) {
		return 0, 0, "", false
	}
	idx := line - 1

	switch {
	case isHeading(lines[idx]):
		start, end = idx, idx

	case listIndent(lines[idx]) >= 0:
		indent := listIndent(lines[idx])
		start, end = idx, idx
		for end+1 < len(lines) {
			next := lines[end+1]
			if isBlank(next) || indentOf(next) <= indent {
				break
			}
			end++
		}

	default:
		start, end = idx, idx
		for start > 0 && isParagraphLine(lines[start-1]) {
			start--
		}
		for end+1 < len(lines) && isParagraphLine(lines[end+1]) {
			end++
		}
	}

	return start + 1, end + 1, strings.Join(lines[start:end+1], "\n"), true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func isHeading(s string) bool {
	return headingRe.MatchString(strings.TrimLeft(s, " "))
}

func isParagraphLine(s string) bool {
	return !isBlank(s) && !isHeading(s) && listIndent(s) < 0 && strings.TrimSpace(s) != "---"
}

// listIndent returns the indentation of a list item line, or -1.
func listIndent(s string) int {
	trimmed := strings.TrimLeft(s, " \t")
	for _, bullet := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(trimmed, bullet) {
			return indentOf(s)
		}
	}
	if orderedRe.MatchString(trimmed) {
		return indentOf(s)
	}
	return -1
}

func indentOf(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}
