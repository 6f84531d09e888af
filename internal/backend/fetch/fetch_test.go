package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/stash/internal/domain"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Channel</title>
    <item>
      <guid>vid-1</guid>
      <title>First Video</title>
      <link>https://example.com/v/1</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
    <item>
      <title>No GUID Video</title>
      <link>https://example.com/v/2</link>
    </item>
  </channel>
</rss>`

func TestFetchNormalizesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	f := NewFeedFetcher(srv.Client())
	entries, err := f.Fetch(context.Background(), domain.Source{ID: "s1", ChannelURL: srv.URL})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "vid-1", entries[0].ExternalID)
	assert.Equal(t, "First Video", entries[0].Title)
	require.NotNil(t, entries[0].PublishedAt)

	// Link stands in for a missing GUID.
	assert.Equal(t, "https://example.com/v/2", entries[1].ExternalID)
	assert.Nil(t, entries[1].PublishedAt)
}

func TestFetchErrorWrapsSourceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFeedFetcher(srv.Client())
	_, err := f.Fetch(context.Background(), domain.Source{ID: "s1", ChannelURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s1")
}

func TestFeedURLYouTubeChannelPage(t *testing.T) {
	src := domain.Source{
		ID:         "s1",
		Platform:   domain.PlatformYouTube,
		ChannelURL: "https://www.youtube.com/channel/UCabc123",
	}
	got, err := FeedURL(src)
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/feeds/videos.xml?channel_id=UCabc123", got)
}

func TestFeedURLPassthrough(t *testing.T) {
	src := domain.Source{ID: "s1", ChannelURL: "https://example.com/feed.xml"}
	got, err := FeedURL(src)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/feed.xml", got)
}

func TestFeedURLEmpty(t *testing.T) {
	_, err := FeedURL(domain.Source{ID: "s1"})
	assert.Error(t, err)
}
