package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsearch/internal/manifest"
	"podsearch/internal/sites"
	"podsearch/internal/storage/mock"
)

func feedXML(items string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Test Pod</title>
` + items + `
</channel></rss>`
}

func itemXML(title, pubDate, audioURL string) string {
	return fmt.Sprintf(`<item>
<title>%s</title>
<pubDate>%s</pubDate>
<enclosure url="%s" type="audio/mpeg" length="1000"/>
</item>`, title, pubDate, audioURL)
}

// feedServer serves a mutable RSS document plus fake audio bytes.
type feedServer struct {
	*httptest.Server
	items func() string
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{items: func() string { return "" }}
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML(fs.items()))
	})
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fake-audio-bytes-for-"+r.URL.Path)
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func testSite(fs *feedServer) sites.Site {
	return sites.Site{
		ID:    "testsite",
		Title: "Test Pod",
		Feeds: []sites.Feed{{ID: "main", URL: fs.URL + "/feed.xml"}},
	}
}

func TestRunDiscoversAndDownloads(t *testing.T) {
	ctx := context.Background()
	fs := newFeedServer(t)
	fs.items = func() string {
		return itemXML("The Opener", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3") +
			itemXML("The Followup", "Mon, 13 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep2.mp3")
	}

	store := mock.New()
	result, err := NewRetriever(store, nil).Run(ctx, testSite(fs))
	require.NoError(t, err)

	assert.True(t, result.HasNewAudio)
	assert.Equal(t, 2, result.Downloaded)
	assert.Empty(t, result.FeedErrors)

	m, err := manifest.Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, m.Episodes, 2)

	// Published order drives id assignment.
	assert.Equal(t, 1, m.Episodes[0].SequentialID)
	assert.Equal(t, "2020-01-06_The-Opener", m.Episodes[0].FileKey)
	assert.Equal(t, 2, m.Episodes[1].SequentialID)
	assert.Equal(t, "2020-01-13_The-Followup", m.Episodes[1].FileKey)
	assert.NotEmpty(t, m.Episodes[0].DownloadedAtIso)

	audio, err := store.Get(ctx, "audio/main/2020-01-06_The-Opener.mp3")
	require.NoError(t, err)
	assert.NotEmpty(t, audio)

	// Raw feed is cached for drift checks.
	_, err = store.Get(ctx, "rss/main.xml")
	assert.NoError(t, err)
}

func TestRunSecondRunIsWriteFree(t *testing.T) {
	ctx := context.Background()
	fs := newFeedServer(t)
	fs.items = func() string {
		return itemXML("The Opener", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3")
	}

	store := mock.New()
	retriever := NewRetriever(store, nil)

	_, err := retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)

	store.ResetCounters()
	result, err := retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)

	assert.False(t, result.HasNewAudio)
	assert.Equal(t, 0, result.Downloaded)
	assert.Equal(t, 0, store.Writes())
}

func TestRunStampsEveryNewEpisode(t *testing.T) {
	ctx := context.Background()
	fs := newFeedServer(t)
	fs.items = func() string {
		return itemXML("The Opener", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3") +
			itemXML("The Followup", "Mon, 13 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep2.mp3") +
			itemXML("The Third", "Mon, 20 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep3.mp3")
	}

	store := mock.New()
	retriever := NewRetriever(store, nil)
	result, err := retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Downloaded)

	// Every discovered episode keeps its download stamp in the saved
	// manifest, not just the last one appended.
	m, err := manifest.Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, m.Episodes, 3)
	for _, ep := range m.Episodes {
		assert.NotEmpty(t, ep.DownloadedAtIso, "episode %s lost its download stamp", ep.FileKey)
	}

	// With all stamps persisted, the second run has nothing to rewrite.
	store.ResetCounters()
	result, err = retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Downloaded)
	assert.Equal(t, 0, store.Writes())
}

func TestRunNewEpisodeGetsNextID(t *testing.T) {
	ctx := context.Background()
	fs := newFeedServer(t)
	fs.items = func() string {
		return itemXML("The Opener", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3")
	}

	store := mock.New()
	retriever := NewRetriever(store, nil)
	_, err := retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)

	fs.items = func() string {
		return itemXML("The Opener", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3") +
			itemXML("The Third", "Mon, 20 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep3.mp3")
	}
	_, err = retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)

	m, err := manifest.Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, m.Episodes, 2)
	assert.Equal(t, 2, m.Episodes[1].SequentialID)
	assert.Equal(t, "2020-01-20_The-Third", m.Episodes[1].FileKey)
}

func TestRunTitleEditKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	fs := newFeedServer(t)
	fs.items = func() string {
		return itemXML("Original Title", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3")
	}

	store := mock.New()
	retriever := NewRetriever(store, nil)
	_, err := retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)

	// Upstream edits the title; the audio URL still identifies the episode.
	fs.items = func() string {
		return itemXML("Retitled Episode", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3")
	}
	_, err = retriever.Run(ctx, testSite(fs))
	require.NoError(t, err)

	m, err := manifest.Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, m.Episodes, 1)
	assert.Equal(t, 1, m.Episodes[0].SequentialID)
	assert.Equal(t, "2020-01-06_Original-Title", m.Episodes[0].FileKey)
}

func TestRunFeedErrorIsolation(t *testing.T) {
	ctx := context.Background()
	fs := newFeedServer(t)
	fs.items = func() string {
		return itemXML("The Opener", "Mon, 06 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep1.mp3")
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	site := testSite(fs)
	site.Feeds = append(site.Feeds, sites.Feed{ID: "broken", URL: broken.URL + "/feed.xml"})

	store := mock.New()
	result, err := NewRetriever(store, nil).Run(ctx, site)
	require.NoError(t, err)

	// The healthy feed still lands its episode.
	require.Len(t, result.FeedErrors, 1)
	assert.Equal(t, 1, result.Downloaded)
}

func TestRunSkipsItemsWithoutAudio(t *testing.T) {
	ctx := context.Background()
	fs := newFeedServer(t)
	fs.items = func() string {
		return `<item><title>Text only post</title><pubDate>Mon, 06 Jan 2020 12:00:00 GMT</pubDate></item>` +
			itemXML("Real Episode", "Mon, 13 Jan 2020 12:00:00 GMT", fs.URL+"/audio/ep2.mp3")
	}

	store := mock.New()
	result, err := NewRetriever(store, nil).Run(ctx, testSite(fs))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Downloaded)
	m, err := manifest.Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, m.Episodes, 1)
	assert.Equal(t, "Real Episode", m.Episodes[0].Title)
}

func TestAudioKey(t *testing.T) {
	assert.Equal(t, "audio/main/2020-01-06_The-Opener.mp3", AudioKey("main", "2020-01-06_The-Opener"))
}
