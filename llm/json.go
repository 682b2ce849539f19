package llm

import (
	"regexp"
	"strings"
)

var codeBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON trims a model response down to its JSON payload. Models often
// wrap JSON in markdown code fences or surround it with prose even when JSON
// output was requested; this strips fences and cuts to the outermost object
// or array boundaries. The heuristics handle braces inside string literals
// but are not a JSON parser — the caller still decodes the result.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if matches := codeBlockRegex.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	firstBrace := strings.IndexByte(text, '{')
	firstBracket := strings.IndexByte(text, '[')
	if firstBrace == -1 && firstBracket == -1 {
		return text
	}

	var start int
	var opening, closing byte
	if firstBracket == -1 || (firstBrace != -1 && firstBrace < firstBracket) {
		start, opening, closing = firstBrace, '{', '}'
	} else {
		start, opening, closing = firstBracket, '[', ']'
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return text[start:]
}
