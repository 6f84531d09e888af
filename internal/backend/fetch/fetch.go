// Package fetch pulls remote channel feeds and normalizes their entries.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mmcdole/stash/internal/domain"
)

// Entry is one normalized remote feed entry.
type Entry struct {
	ExternalID   string
	Title        string
	ThumbnailURL string
	PublishedAt  *time.Time
	Duration     int64
}

// Fetcher retrieves the current entries of a source's remote feed.
type Fetcher interface {
	Fetch(ctx context.Context, source domain.Source) ([]Entry, error)
}

// FeedFetcher fetches channel RSS feeds over HTTP.
type FeedFetcher struct {
	parser *gofeed.Parser
}

// NewFeedFetcher creates a fetcher over the given HTTP client (nil uses a
// 30-second-timeout default).
func NewFeedFetcher(client *http.Client) *FeedFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	return &FeedFetcher{parser: parser}
}

func (f *FeedFetcher) Fetch(ctx context.Context, source domain.Source) ([]Entry, error) {
	feedURL, err := FeedURL(source)
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed for source %s: %w", source.ID, err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, normalizeItem(item))
	}
	return entries, nil
}

func normalizeItem(item *gofeed.Item) Entry {
	e := Entry{
		ExternalID:  item.GUID,
		Title:       item.Title,
		PublishedAt: item.PublishedParsed,
	}
	if e.ExternalID == "" {
		e.ExternalID = item.Link
	}
	if item.Image != nil {
		e.ThumbnailURL = item.Image.URL
	}
	// YouTube feeds carry the video id and thumbnail in the media extension.
	if media, ok := item.Extensions["media"]; ok {
		for _, group := range media["group"] {
			for _, thumb := range group.Children["thumbnail"] {
				if u := thumb.Attrs["url"]; u != "" && e.ThumbnailURL == "" {
					e.ThumbnailURL = u
				}
			}
		}
	}
	return e
}

// FeedURL resolves the RSS feed URL for a source. YouTube channel pages map
// to the channel_id feed endpoint; other URLs are assumed to be feeds
// already.
func FeedURL(source domain.Source) (string, error) {
	raw := strings.TrimSpace(source.ChannelURL)
	if raw == "" {
		return "", fmt.Errorf("source %s has no channel url", source.ID)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid channel url %q: %w", raw, err)
	}

	if source.Platform == domain.PlatformYouTube {
		if id, ok := youtubeChannelID(u); ok {
			return "https://www.youtube.com/feeds/videos.xml?channel_id=" + id, nil
		}
	}
	return raw, nil
}

func youtubeChannelID(u *url.URL) (string, bool) {
	if !strings.Contains(u.Host, "youtube.com") {
		return "", false
	}
	if id := u.Query().Get("channel_id"); id != "" {
		return id, true
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 2 && parts[0] == "channel" {
		return parts[1], true
	}
	return "", false
}
