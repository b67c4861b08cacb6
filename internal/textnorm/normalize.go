// Package textnorm cleans raw webhook payloads into plain, speakable text.
//
// Webhook replies arrive in whatever shape the remote workflow happens to
// produce: bare prose, JSON envelopes with the answer buried under varying
// field names, HTML fragments, or Markdown. NormalizeResponseText flattens
// all of them into display text; NormalizeForSpeech additionally restricts
// the result to characters a synthesis backend pronounces well.
package textnorm

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// responseFields are probed in priority order when a payload parses as JSON.
var responseFields = []string{"output", "response", "message", "text", "content", "result", "answer", "data"}

// nestedDataFields are probed inside a "data" sub-object.
var nestedDataFields = []string{"response", "message", "text"}

var (
	responsePrefixRe = regexp.MustCompile(`^\s*Response:\s*`)
	outputFieldRe    = regexp.MustCompile(`"output"\s*:\s*"((?:[^"\\]|\\.)*)"`)

	brTagRe       = regexp.MustCompile(`(?i)<br\s*/?>`)
	pTagRe        = regexp.MustCompile(`(?i)</?p[^>]*>`)
	liOpenRe      = regexp.MustCompile(`(?i)<li[^>]*>`)
	liCloseRe     = regexp.MustCompile(`(?i)</li>`)
	listTagRe     = regexp.MustCompile(`(?i)</?(?:ul|ol)[^>]*>`)
	hOpenRe       = regexp.MustCompile(`(?i)<h[1-6][^>]*>`)
	hCloseRe      = regexp.MustCompile(`(?i)</h[1-6]>`)
	emphasisTagRe = regexp.MustCompile(`(?i)</?(?:b|strong|i|em)[^>]*>`)
	anyTagRe      = regexp.MustCompile(`<[^>]+>`)

	boldStarsRe        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicStarRe       = regexp.MustCompile(`\*([^*]+)\*`)
	boldUnderscoreRe   = regexp.MustCompile(`__([^_]+)__`)
	italicUnderscoreRe = regexp.MustCompile(`_([^_]+)_`)
	linkRe             = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)

	whitespaceRe = regexp.MustCompile(`\s+`)
	newlinesRe   = regexp.MustCompile(`\n{3,}`)
)

var literalUnescaper = strings.NewReplacer(`\n`, "\n", `\"`, `"`)

// NormalizeResponseText converts a raw webhook reply into plain display text.
// It never fails; the worst case is the cleaned-up original or an empty string.
func NormalizeResponseText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if extracted, ok := extractFromJSON(trimmed); ok {
			return literalUnescaper.Replace(extracted)
		}
	}

	text := trimmed
	text = responsePrefixRe.ReplaceAllString(text, "")

	// Payloads that look like JSON but do not parse still often carry an
	// "output" field; recover its value with a quoted-string match.
	if m := outputFieldRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = literalUnescaper.Replace(text)

	text = stripHTML(text)
	text = stripMarkdown(text)

	// The whitespace collapse flattens newline runs before the blank-line
	// reduction below ever sees them; the order is deliberate.
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	text = newlinesRe.ReplaceAllString(text, "\n\n")
	return text
}

// NormalizeForSpeech prepares text for synthesis: normalize, soften ellipses,
// and drop characters outside the pronounceable set.
func NormalizeForSpeech(text string) string {
	t := NormalizeResponseText(text)
	t = strings.ReplaceAll(t, "...", ". ")

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		if speakableRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}

func speakableRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(`.,!?'"()-€$£%`, r)
}

// extractFromJSON parses the payload and runs the extraction strategies in
// order. The boolean reports whether any strategy produced text.
func extractFromJSON(trimmed string) (string, bool) {
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return "", false
	}
	for _, strategy := range extractionStrategies {
		if s, ok := strategy(parsed); ok {
			return s, true
		}
	}
	return "", false
}

// An extraction strategy inspects a parsed payload and either claims it or
// passes. Strategies are ordered from most to least specific.
type extraction func(v any) (string, bool)

var extractionStrategies = []extraction{
	extractDirectString,
	extractKnownField,
	extractLongestField,
	extractStringified,
}

// extractDirectString handles payloads that are a bare string or an array
// whose first element is a string.
func extractDirectString(v any) (string, bool) {
	return asString(v)
}

// extractKnownField probes the well-known reply field names, descending one
// level into a "data" object.
func extractKnownField(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	for _, field := range responseFields {
		val, present := obj[field]
		if !present {
			continue
		}
		if s, ok := asString(val); ok && s != "" {
			return s, true
		}
		if field == "data" {
			if nested, ok := val.(map[string]any); ok {
				for _, sub := range nestedDataFields {
					if s, ok := asString(nested[sub]); ok && s != "" {
						return s, true
					}
				}
			}
		}
	}
	return "", false
}

// extractLongestField falls back to the first string-valued field longer than
// 20 characters. Keys are visited in sorted order so the choice is stable.
func extractLongestField(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && len(s) > 20 {
			return s, true
		}
	}
	return "", false
}

// extractStringified is the terminal strategy: re-serialize the payload so at
// least something readable reaches the user.
func extractStringified(v any) (string, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return "Response: " + string(b), true
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func stripHTML(text string) string {
	text = brTagRe.ReplaceAllString(text, "\n")
	text = pTagRe.ReplaceAllString(text, "\n")
	text = liOpenRe.ReplaceAllString(text, "\n• ")
	text = liCloseRe.ReplaceAllString(text, "")
	text = listTagRe.ReplaceAllString(text, "\n")
	text = hOpenRe.ReplaceAllString(text, "\n\n")
	text = hCloseRe.ReplaceAllString(text, "\n")
	text = emphasisTagRe.ReplaceAllString(text, "")
	text = anyTagRe.ReplaceAllString(text, " ")
	return text
}

func stripMarkdown(text string) string {
	text = boldStarsRe.ReplaceAllString(text, "$1")
	text = italicStarRe.ReplaceAllString(text, "$1")
	text = boldUnderscoreRe.ReplaceAllString(text, "$1")
	text = italicUnderscoreRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	return text
}
