// Package extract parses delimiter-bounded JSON control tags out of
// generated text and normalizes the remainder for a plain-text
// messaging surface.
//
// The generation model is asked to embed blocks of the form
//
//	TAG_NAME: { ...json... }
//
// inside its free-text output. The JSON body may contain nested braces
// and newlines, so matching is done with a brace-depth-counting scan
// from the first '{' to its matching '}' — never with a non-greedy
// regex, which stops at the first '}' and corrupts nested payloads.
// The tag channel is untrusted: a missing, malformed or duplicated tag
// must never affect the visible reply.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
)

// Record is one parsed control tag in encounter order.
type Record struct {
	Tag     string
	Payload map[string]any
}

// MetricsRecorder receives per-tag outcomes. Optional.
type MetricsRecorder interface {
	RecordExtractedTag(tag, status string)
}

// Extractor recognizes a fixed set of tag names.
type Extractor struct {
	tags    []string
	metrics MetricsRecorder
}

// New creates an Extractor for the given tag names.
func New(tags ...string) *Extractor {
	return &Extractor{tags: tags}
}

// SetMetrics sets the optional metrics recorder.
func (e *Extractor) SetMetrics(m MetricsRecorder) {
	e.metrics = m
}

// Extract scans raw for tagged JSON blocks, strips them (whether or not
// they parse), and returns the sanitized text plus the successfully
// parsed records in encounter order. Numeric-looking string leaves in
// the payloads are coerced to numbers; the generator regularly emits
// `"kcal": "250"`.
func (e *Extractor) Extract(ctx context.Context, raw string) (string, []Record) {
	var records []Record
	var out strings.Builder
	out.Grow(len(raw))

	i := 0
	for i < len(raw) {
		tag, bodyStart, ok := e.matchTagAt(raw, i)
		if !ok {
			out.WriteByte(raw[i])
			i++
			continue
		}

		body, end, balanced := scanBraces(raw, bodyStart)
		if !balanced {
			// Truncated block: the model ran out of tokens mid-tag.
			// Strip to end of text so no control syntax leaks.
			slog.WarnContext(ctx, "unterminated control tag",
				"tag", tag,
				"remaining_bytes", len(raw)-i)
			e.recordTag(tag, "malformed")
			i = len(raw)
			break
		}

		payload, err := parsePayload(body)
		if err != nil {
			// Drop the malformed record but keep going: one bad tag
			// must not abort extraction of its siblings.
			slog.WarnContext(ctx, "malformed control tag payload",
				"tag", tag,
				"error", err)
			e.recordTag(tag, "malformed")
		} else {
			records = append(records, Record{Tag: tag, Payload: payload})
			e.recordTag(tag, "parsed")
		}

		i = end
	}

	clean := NormalizeMarkdown(out.String())
	return clean, records
}

func (e *Extractor) recordTag(tag, status string) {
	if e.metrics != nil {
		e.metrics.RecordExtractedTag(tag, status)
	}
}

// matchTagAt reports whether a recognized tag block starts at raw[i],
// returning the tag name and the index of its opening brace.
func (e *Extractor) matchTagAt(raw string, i int) (string, int, bool) {
	for _, tag := range e.tags {
		if !strings.HasPrefix(raw[i:], tag) {
			continue
		}
		j := i + len(tag)
		j = skipSpaces(raw, j)
		if j >= len(raw) || raw[j] != ':' {
			continue
		}
		j = skipSpaces(raw, j+1)
		if j >= len(raw) || raw[j] != '{' {
			continue
		}
		return tag, j, true
	}
	return "", 0, false
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

// scanBraces walks from the opening brace at s[start] to its matching
// close brace, tolerating nested braces and braces inside JSON strings.
// It returns the brace-delimited substring, the index just past the
// closing brace, and whether a match was found.
func scanBraces(s string, start int) (string, int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], i + 1, true
			}
		}
	}
	return "", len(s), false
}

func parsePayload(body string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, err
	}
	coerceNumbers(payload)
	return payload, nil
}

// coerceNumbers rewrites numeric-looking string leaves to float64,
// recursively. The prompt contract asks for numbers but the model
// often quotes them.
func coerceNumbers(m map[string]any) {
	for k, v := range m {
		m[k] = coerceValue(v)
	}
}

func coerceValue(v any) any {
	switch val := v.(type) {
	case string:
		if n, ok := parseJSONNumber(val); ok {
			return n
		}
		return val
	case map[string]any:
		coerceNumbers(val)
		return val
	case []any:
		for i, item := range val {
			val[i] = coerceValue(item)
		}
		return val
	default:
		return v
	}
}

// parseJSONNumber accepts exactly the strings that are valid bare JSON
// numbers. This keeps "3月" or "v2" or "NaN" as strings.
func parseJSONNumber(s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, false
	}
	if c := trimmed[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	if !json.Valid([]byte(trimmed)) {
		return 0, false
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
