package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"

	"tradenerd/internal/embedding"
	"tradenerd/internal/logging"
)

// ErrRetrievalDegraded marks retrieval that fell back to keyword-only
// scoring because no query embedding could be produced. It is absorbed
// by callers: a degraded result is still a usable result.
var ErrRetrievalDegraded = errors.New("retrieval degraded to keyword-only")

// Match is one retrieved precedent with its score decomposition.
type Match struct {
	Record   Record
	Score    float64
	Semantic float64
	Keyword  float64
}

// Result holds the ranked matches for one retrieval. Degraded is true
// when the semantic component was unavailable and alpha was forced to 0.
type Result struct {
	Matches  []Match
	Degraded bool
}

// Retrieve returns the top-limit precedents from a collection ranked by
// the hybrid score alpha*semantic + (1-alpha)*keyword. Semantic scores
// map cosine similarity onto [0,1]; keyword scores are the fraction of
// query tokens present in the stored situation. Ties break newest first.
func (s *Store) Retrieve(ctx context.Context, collection, query string, alpha float64, limit int) (*Result, error) {
	if limit < 1 {
		limit = 1
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	records, err := s.loadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Result{}, nil
	}

	degraded := false
	var queryVec []float32
	if s.engine == nil {
		degraded = alpha > 0
	} else if alpha > 0 {
		queryVec, err = s.engine.Embed(ctx, query)
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("%v: query embedding failed: %v", ErrRetrievalDegraded, err)
			degraded = true
		}
	}
	if degraded {
		alpha = 0
	}

	queryTokens := tokenize(query)

	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		kw := keywordScore(queryTokens, rec.Situation)

		var sem float64
		if alpha > 0 && len(rec.Embedding) > 0 && len(queryVec) > 0 {
			sem, err = embedding.Similarity01(queryVec, rec.Embedding)
			if err != nil {
				logging.MemoryDebug("Similarity failed for precedent %d: %v", rec.ID, err)
				sem = 0
			}
		}

		matches = append(matches, Match{
			Record:   rec,
			Score:    alpha*sem + (1-alpha)*kw,
			Semantic: sem,
			Keyword:  kw,
		})
	}

	// Records arrive newest first, so a stable sort preserves the
	// newest-first tie order the contract requires.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	logging.MemoryDebug("Retrieved %d/%d precedents from %s (alpha=%v degraded=%v)",
		len(matches), len(records), collection, alpha, degraded)

	return &Result{Matches: matches, Degraded: degraded}, nil
}

// keywordScore returns the fraction of query tokens found in the text.
func keywordScore(queryTokens []string, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := make(map[string]bool)
	for _, tok := range tokenize(text) {
		textTokens[tok] = true
	}
	hits := 0
	for _, tok := range queryTokens {
		if textTokens[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

// tokenize splits text into lowercase word tokens, dropping words too
// common or too short to discriminate between situations.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return uniqueStrings(filterCommon(fields))
}

func filterCommon(words []string) []string {
	result := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 || isCommonWord(w) {
			continue
		}
		result = append(result, w)
	}
	return result
}

// isCommonWord returns true if the word is too common to be useful.
func isCommonWord(word string) bool {
	common := map[string]bool{
		"the": true, "and": true, "are": true, "was": true, "were": true,
		"been": true, "being": true, "have": true, "has": true, "had": true,
		"does": true, "did": true, "will": true, "would": true, "could": true,
		"should": true, "may": true, "might": true, "must": true, "shall": true,
		"for": true, "with": true, "from": true, "into": true, "through": true,
		"during": true, "before": true, "after": true, "above": true, "below": true,
		"but": true, "nor": true, "yet": true, "then": true, "else": true,
		"when": true, "where": true, "why": true, "how": true, "all": true,
		"each": true, "every": true, "both": true, "few": true, "more": true,
		"most": true, "other": true, "some": true, "such": true, "not": true,
		"only": true, "own": true, "same": true, "than": true, "too": true,
		"very": true, "can": true, "just": true, "now": true, "new": true,
		"this": true, "that": true, "these": true, "those": true, "its": true,
		"you": true, "she": true, "they": true, "your": true, "his": true,
		"her": true, "our": true, "their": true, "him": true, "them": true,
	}
	return common[word]
}

// uniqueStrings removes duplicates from a string slice.
func uniqueStrings(ss []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}
