// Package guard implements the post-processing passes applied to every LLM
// response before it is accepted as a phase result: JSON extraction and
// truncation repair, auto-unwrap of envelope keys, evidence grounding,
// confidence penalties, and the numeric-label sentinel.
package guard

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/planforge/finmodel/apperr"
)

// Precompiled regex passes used by the extraction fallback, tried in this
// order against text the strict parser could not consume.
var (
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)```")
	fencedAnyPattern  = regexp.MustCompile("(?s)```\\s*\\n?(.*?)```")
	bracesPattern     = regexp.MustCompile(`(?s)\{.*\}`)
)

// leadingFencePattern matches a leading ``` or ```lang fence.
var leadingFencePattern = regexp.MustCompile("^```[a-zA-Z]*\\s*\\n?")

// trailingFencePattern matches a trailing ```.
var trailingFencePattern = regexp.MustCompile("\\s*```\\s*$")

// StripFence removes a leading and trailing markdown code fence if present.
// A fence with only a leading half (no matching trailing fence) still has
// that leading fence removed; the rest of the text is returned as is.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	withoutLeading := leadingFencePattern.ReplaceAllString(trimmed, "")
	if withoutLeading == trimmed {
		return text
	}
	if trailingFencePattern.MatchString(withoutLeading) {
		return trailingFencePattern.ReplaceAllString(withoutLeading, "")
	}
	return withoutLeading
}

// StopReason mirrors the provider-reported reason generation stopped.
type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonToolUse   StopReason = "tool_use"
)

// ExtractJSON runs the full JSON output guard contract against raw LLM
// text: strip fence, find the first '{', attempt a strict parse, then
// either truncation repair (stop=max_tokens) or regex-extraction fallback.
func ExtractJSON(text string, stop StopReason) (map[string]any, error) {
	stripped := StripFence(text)

	idx := strings.IndexByte(stripped, '{')
	if idx < 0 {
		return nil, apperr.New(apperr.KindJSONGuard, "NoJSONObject", "no JSON object found in response")
	}
	candidate := stripped[idx:]

	if obj, err := parseObject(candidate); err == nil {
		return obj, nil
	}

	if stop == StopReasonMaxTokens {
		if obj, err := RepairTruncated(candidate); err == nil {
			return obj, nil
		}
		return nil, apperr.New(apperr.KindJSONGuard, "ExtractionFailed", "truncation repair did not produce valid JSON")
	}

	if obj, err := ExtractByRegex(text); err == nil {
		return obj, nil
	}
	return nil, apperr.New(apperr.KindJSONGuard, "ExtractionFailed", "no extraction pass produced valid JSON")
}

func parseObject(s string) (map[string]any, error) {
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// RepairTruncated walks text once, tracking escape state, string state, and
// brace/bracket depth, recording every position where a '}', ']', or ','
// occurred together with the depth just after it. A truncation that lands
// right after a complete scalar (a number or literal with no trailing
// delimiter, e.g. a cut-off `max_tokens` stop mid-array-element) has no mark
// of its own, so the whole text is tried first, closed at the depth the
// walk ended on. Only when that fails — the cut landed inside a string, or
// the tail is a dangling key or trailing comma that can't be closed into
// valid JSON — does it fall back to the last up-to-30 recorded positions in
// reverse, forming a candidate by truncating to that position (inclusive,
// except for a trailing comma) and closing all open brackets/braces,
// returning the first candidate that parses.
func RepairTruncated(s string) (map[string]any, error) {
	type mark struct {
		pos          int // position of the delimiter itself
		braceDepth   int // depth of '{' nesting immediately after this delimiter
		bracketDepth int
		isComma      bool
	}

	var marks []mark
	inString := false
	escaped := false
	braceDepth := 0
	bracketDepth := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			braceDepth++
		case '[':
			bracketDepth++
		case '}':
			braceDepth--
			marks = append(marks, mark{pos: i, braceDepth: braceDepth, bracketDepth: bracketDepth})
		case ']':
			bracketDepth--
			marks = append(marks, mark{pos: i, braceDepth: braceDepth, bracketDepth: bracketDepth})
		case ',':
			marks = append(marks, mark{pos: i, braceDepth: braceDepth, bracketDepth: bracketDepth, isComma: true})
		}
	}

	if !inString && len(s) > 0 {
		if obj, err := closeAt(s, braceDepth, bracketDepth); err == nil {
			return obj, nil
		}
	}

	start := 0
	if len(marks) > 30 {
		start = len(marks) - 30
	}
	candidates := marks[start:]

	for i := len(candidates) - 1; i >= 0; i-- {
		m := candidates[i]
		var prefix string
		if m.isComma {
			prefix = s[:m.pos]
		} else {
			prefix = s[:m.pos+1]
		}
		if obj, err := closeAt(prefix, m.braceDepth, m.bracketDepth); err == nil {
			return obj, nil
		}
	}

	return nil, apperr.New(apperr.KindJSONGuard, "ExtractionFailed", "no truncation-repair candidate parsed")
}

// closeAt appends bracketDepth ']' and braceDepth '}' to prefix and attempts
// a strict parse of the result.
func closeAt(prefix string, braceDepth, bracketDepth int) (map[string]any, error) {
	var b strings.Builder
	b.WriteString(prefix)
	for j := 0; j < bracketDepth; j++ {
		b.WriteByte(']')
	}
	for j := 0; j < braceDepth; j++ {
		b.WriteByte('}')
	}
	return parseObject(b.String())
}

// ExtractByRegex applies, in order, a fenced-```json``` pass, a fenced-
// ```…``` pass, and a dotall {.*} pass, returning the first that parses.
func ExtractByRegex(text string) (map[string]any, error) {
	patterns := []*regexp.Regexp{fencedJSONPattern, fencedAnyPattern, bracesPattern}
	for _, p := range patterns {
		m := p.FindStringSubmatch(text)
		var candidate string
		if len(m) > 1 {
			candidate = m[1]
		} else if p == bracesPattern {
			candidate = p.FindString(text)
		}
		if candidate == "" {
			continue
		}
		idx := strings.IndexByte(candidate, '{')
		if idx < 0 {
			continue
		}
		if obj, err := parseObject(candidate[idx:]); err == nil {
			return obj, nil
		}
	}
	return nil, apperr.New(apperr.KindJSONGuard, "ExtractionFailed", "regex extraction produced no valid JSON")
}

// envelopeKeys are the container keys auto-unwrap tries, in the order
// listed by the pipeline's output contract.
var envelopeKeys = []string{"result", "response", "data", "output", "analysis", "design"}

// AutoUnwrap substitutes obj with the single envelope key's inner mapping
// when obj lacks all of expectedKeys but contains exactly one present
// envelope key whose value is itself a mapping containing at least one of
// expectedKeys.
func AutoUnwrap(obj map[string]any, expectedKeys []string) map[string]any {
	if hasAny(obj, expectedKeys) {
		return obj
	}

	var found map[string]any
	count := 0
	for _, k := range envelopeKeys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		inner, ok := v.(map[string]any)
		if !ok {
			continue
		}
		count++
		found = inner
	}
	if count == 1 && hasAny(found, expectedKeys) {
		return found
	}
	return obj
}

func hasAny(obj map[string]any, keys []string) bool {
	if obj == nil {
		return false
	}
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}
