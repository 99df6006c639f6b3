package search

import "strings"

// ParsedQuery splits a raw query string into quoted phrases and
// whitespace-separated keywords. The original string is preserved
// separately (by the caller) for the embedding request and for FTS.
type ParsedQuery struct {
	Phrases  []string
	Keywords []string
}

// ParseQuery splits raw into zero or more double-quoted phrases
// (supporting `\"` escape) and remaining whitespace-separated
// keywords, per spec §4.8.
func ParseQuery(raw string) ParsedQuery {
	var phrases, keywords []string

	var rest strings.Builder
	runes := []rune(raw)
	i := 0
	for i < len(runes) {
		if runes[i] == '"' {
			j := i + 1
			var phrase strings.Builder
			for j < len(runes) {
				if runes[j] == '\\' && j+1 < len(runes) && runes[j+1] == '"' {
					phrase.WriteRune('"')
					j += 2
					continue
				}
				if runes[j] == '"' {
					break
				}
				phrase.WriteRune(runes[j])
				j++
			}
			if phrase.Len() > 0 {
				phrases = append(phrases, phrase.String())
			}
			if j < len(runes) {
				j++ // consume closing quote
			}
			i = j
			rest.WriteRune(' ')
			continue
		}
		rest.WriteRune(runes[i])
		i++
	}

	for _, tok := range strings.Fields(rest.String()) {
		keywords = append(keywords, tok)
	}

	return ParsedQuery{Phrases: phrases, Keywords: keywords}
}

// quoteFTSTerm wraps a literal term for fts5 MATCH, escaping embedded
// double quotes by doubling them (fts5 string-literal convention).
func quoteFTSTerm(term string) string {
	escaped := strings.ReplaceAll(term, `"`, `""`)
	return `"` + escaped + `"`
}

// BuildFTSExpr builds a column-qualified fts5 MATCH expression ANDing
// every phrase and keyword (fts5's default juxtaposition operator),
// each individually quoted so punctuation and fts5 operator characters
// in a token (AND/OR/NOT/-/*) are treated as literal text.
func BuildFTSExpr(column string, parsed ParsedQuery) string {
	if len(parsed.Phrases) == 0 && len(parsed.Keywords) == 0 {
		return ""
	}
	terms := make([]string, 0, len(parsed.Phrases)+len(parsed.Keywords))
	for _, p := range parsed.Phrases {
		terms = append(terms, quoteFTSTerm(p))
	}
	for _, k := range parsed.Keywords {
		terms = append(terms, quoteFTSTerm(k))
	}
	return column + ":(" + strings.Join(terms, " ") + ")"
}
