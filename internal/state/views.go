package state

import (
	"sort"
	"strings"

	"github.com/mmcdole/stash/internal/domain"
)

// SortKey is a total order over a declared entity key. Ties keep the original
// relative order (stable sort).
type SortKey int

const (
	SortDateDesc SortKey = iota
	SortDateAsc
	SortTitle
	SortSize
)

// FeedFilter selects a subset of a feed snapshot. Zero-value fields are
// inactive. A nil ResultIDs with a non-empty Query means the backend search
// is unavailable and filtering degrades to a local case-insensitive substring
// match on the title.
type FeedFilter struct {
	SourceID  string
	Status    domain.DownloadStatus
	Query     string
	ResultIDs map[string]struct{} // nil = no id-set filter active
	HasIDSet  bool                // true when ResultIDs came from a search response
}

// FilterFeedItems returns the matching items, order-preserving and pure.
func FilterFeedItems(items []domain.FeedItem, f FeedFilter) []domain.FeedItem {
	out := make([]domain.FeedItem, 0, len(items))
	for _, item := range items {
		if f.SourceID != "" && item.SourceID != f.SourceID {
			continue
		}
		if f.Status != "" && item.DownloadStatus != f.Status {
			continue
		}
		if !matchesQuery(item.ID, item.Title, f.Query, f.ResultIDs, f.HasIDSet) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// SortFeedItems returns a sorted copy; equal keys keep input order.
func SortFeedItems(items []domain.FeedItem, key SortKey) []domain.FeedItem {
	out := make([]domain.FeedItem, len(items))
	copy(out, items)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch key {
		case SortDateAsc:
			return publishedUnix(a) < publishedUnix(b)
		case SortTitle:
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case SortSize:
			return a.Duration > b.Duration
		default: // SortDateDesc
			return publishedUnix(a) > publishedUnix(b)
		}
	})
	return out
}

// WarehouseFilter selects a subset of a warehouse snapshot.
type WarehouseFilter struct {
	Platform  domain.Platform
	Query     string
	ResultIDs map[string]struct{}
	HasIDSet  bool
}

// FilterWarehouseItems returns the matching items, order-preserving and pure.
func FilterWarehouseItems(items []domain.WarehouseItem, f WarehouseFilter) []domain.WarehouseItem {
	out := make([]domain.WarehouseItem, 0, len(items))
	for _, item := range items {
		if f.Platform != "" && item.Platform != f.Platform {
			continue
		}
		if !matchesQuery(item.ID, item.Title, f.Query, f.ResultIDs, f.HasIDSet) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// SortWarehouseItems returns a sorted copy; equal keys keep input order.
func SortWarehouseItems(items []domain.WarehouseItem, key SortKey) []domain.WarehouseItem {
	out := make([]domain.WarehouseItem, len(items))
	copy(out, items)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch key {
		case SortDateAsc:
			return importedUnix(a) < importedUnix(b)
		case SortTitle:
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case SortSize:
			return a.FileSize > b.FileSize
		default: // SortDateDesc
			return importedUnix(a) > importedUnix(b)
		}
	})
	return out
}

// matchesQuery applies the search session's id-set when one is active, and
// falls back to local substring matching when the set is nil (search failed
// or no search ran).
func matchesQuery(id, title, query string, resultIDs map[string]struct{}, hasIDSet bool) bool {
	if query == "" {
		return true
	}
	if hasIDSet {
		_, ok := resultIDs[id]
		return ok
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(query))
}

func publishedUnix(item domain.FeedItem) int64 {
	if item.PublishedAt != nil {
		return item.PublishedAt.Unix()
	}
	// Stubs without a published date sort by discovery time.
	return item.CreatedAt.Unix()
}

func importedUnix(item domain.WarehouseItem) int64 {
	return item.ImportedAt.Unix()
}
