package memctx

import (
	"regexp"
	"sort"
	"strings"
)

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9_\-]{1,}`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "you": {},
	"what": {}, "how": {}, "why": {}, "can": {}, "with": {}, "this": {},
	"that": {}, "have": {}, "from": {}, "about": {}, "please": {},
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if _, skip := stopwords[word]; skip {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

// RelevantContext returns up to maxTurns turns sharing keywords with the
// query, ordered by descending shared-token count with more recent turns
// winning ties. An empty store or a query with no usable keywords yields an
// empty result.
func (s *Store) RelevantContext(query string, maxTurns int) []ConversationTurn {
	s.mu.RLock()
	turns := append([]ConversationTurn(nil), s.turns...)
	s.mu.RUnlock()
	if maxTurns <= 0 || len(turns) == 0 {
		return nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scoredTurn struct {
		turn  ConversationTurn
		score int
		index int
	}
	var matches []scoredTurn
	for i, turn := range turns {
		tokens := tokenize(turn.UserInput + " " + turn.AIResponse)
		score := 0
		for token := range queryTokens {
			if _, ok := tokens[token]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scoredTurn{turn: turn, score: score, index: i})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].index > matches[j].index
	})
	if len(matches) > maxTurns {
		matches = matches[:maxTurns]
	}
	out := make([]ConversationTurn, len(matches))
	for i, m := range matches {
		out[i] = m.turn
	}
	return out
}
