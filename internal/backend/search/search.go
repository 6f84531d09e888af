// Package search ranks backend entities against a free-text query.
package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultLimit caps result sets when the caller does not specify one.
const DefaultLimit = 50

// Hit pairs an entity index with its relevance rank. Lower ranks sort first.
type Hit struct {
	Index int
	Rank  int
}

// RankTitles scores every title against query and returns matching hits in
// rank order, capped at limit (<=0 applies DefaultLimit). Non-matches are
// dropped entirely rather than ranked last.
func RankTitles(query string, titles []string, limit int) []Hit {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	hits := make([]Hit, 0, len(titles))
	for i, title := range titles {
		rank, ok := score(strings.ToLower(title), q)
		if !ok {
			continue
		}
		hits = append(hits, Hit{Index: i, Rank: rank})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Rank < hits[j].Rank
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// score ranks one lowercased title against a lowercased query. Lower is
// better. Exact beats prefix beats substring beats fuzzy.
func score(title, query string) (int, bool) {
	if title == query {
		return 0, true
	}
	if strings.HasPrefix(title, query) {
		return 10, true
	}
	if strings.Contains(title, query) {
		return 50, true
	}
	if !fuzzy.MatchFold(query, title) {
		return 0, false
	}
	return 100 + fuzzy.LevenshteinDistance(query, title), true
}
