package domain

import (
	"strings"
)

const (
	MaxQueryChars = 400
	MaxQueryWords = 40
)

// NormalizeQuery приводит текст запроса к виду, который принимает API:
// переводы строк и табы -> пробелы, повторные пробелы схлопываются,
// затем обрезка до MaxQueryChars символов и MaxQueryWords слов.
func NormalizeQuery(text string) string {
	return TruncateQuery(text, MaxQueryChars, MaxQueryWords)
}

func TruncateQuery(text string, maxChars, maxWords int) string {
	text = cleanSpaces(text)

	if r := []rune(text); maxChars > 0 && len(r) > maxChars {
		text = string(r[:maxChars])
	}

	words := strings.Fields(text)
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

func cleanSpaces(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\t", " ").Replace(s)
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}
