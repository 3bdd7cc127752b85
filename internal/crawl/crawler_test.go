package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/listing"
)

// sampleTree builds {f, A:{a1}, B:{B1:{}}}.
func sampleTree() *listing.MemoryLister {
	l := listing.NewMemoryLister()
	l.AddFile("/", "f", 10)
	a := l.AddDir("/", "A")
	l.AddFile(a, "a1", 20)
	b := l.AddDir("/", "B")
	l.AddDir(b, "B1")
	return l
}

func names(n *entry.Node) []string {
	var out []string
	for _, it := range n.Items() {
		out = append(out, it.Entry.Name)
	}
	return out
}

func TestCrawlSampleTree(t *testing.T) {
	l := sampleTree()
	opts := DefaultOptions().WithConcurrency(2).WithRetryTimes(1).WithBaseURL("https://idx.example/0:")

	c, err := New(l, opts)
	require.NoError(t, err)
	root, err := c.Crawl(context.Background(), "/")
	require.NoError(t, err)
	require.NotNil(t, root)

	assert.Equal(t, []string{"A", "B", "f"}, names(root))

	a, ok := root.Get("A")
	require.True(t, ok)
	assert.True(t, a.Entry.IsFolder)
	assert.Equal(t, "/A/", a.Entry.ResolvedPath)
	require.NotNil(t, a.Children())
	assert.Equal(t, []string{"a1"}, names(a.Children()))

	a1, _ := a.Children().Get("a1")
	assert.Equal(t, "/A/a1", a1.Entry.ResolvedPath)
	assert.Equal(t, "https://idx.example/0:/A/a1", a1.Entry.DownloadURL)

	b, _ := root.Get("B")
	require.NotNil(t, b.Children())
	b1, ok := b.Children().Get("B1")
	require.True(t, ok)
	require.NotNil(t, b1.Children(), "empty folder still gets a listed node")
	assert.Equal(t, 0, b1.Children().Len())

	assert.EqualValues(t, 4, l.TotalCalls())
	for _, p := range []string{"/", "/A/", "/B/", "/B/B1/"} {
		assert.Equal(t, 1, l.Calls(p), p)
	}

	stats := c.Stats()
	assert.EqualValues(t, 4, stats.Jobs)
	assert.EqualValues(t, 4, stats.ListCalls)
	assert.Zero(t, stats.FailedAttempts)
	assert.LessOrEqual(t, stats.PeakInFlight, 2)

	files, folders := root.Counts()
	assert.EqualValues(t, 2, files)
	assert.EqualValues(t, 3, folders)
}

func TestCrawlRespectsConcurrencyLimit(t *testing.T) {
	l := listing.NewMemoryLister()
	for i := 0; i < 12; i++ {
		d := l.AddDir("/", fmt.Sprintf("d%02d", i))
		for j := 0; j < 3; j++ {
			l.AddDir(d, fmt.Sprintf("s%d", j))
		}
	}
	l.SetLatency(5 * time.Millisecond)

	c, err := New(l, DefaultOptions().WithConcurrency(3))
	require.NoError(t, err)
	root, err := c.Crawl(context.Background(), "/")
	require.NoError(t, err)

	_, folders := root.Counts()
	assert.EqualValues(t, 12+36, folders)
	assert.EqualValues(t, 1+12+36, l.TotalCalls())
	assert.LessOrEqual(t, l.MaxConcurrent(), int64(3))
	assert.LessOrEqual(t, c.Stats().PeakInFlight, 3)
}

func TestCrawlZeroConcurrencyRunsSerially(t *testing.T) {
	l := sampleTree()
	l.SetLatency(time.Millisecond)

	root, err := Crawl(context.Background(), l, "/", DefaultOptions().WithConcurrency(0))
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.EqualValues(t, 1, l.MaxConcurrent())
}

func TestCrawlRetriesWithoutDuplicates(t *testing.T) {
	l := sampleTree()
	l.FailNext("/A/", 1)

	var mu sync.Mutex
	var retried []string
	opts := DefaultOptions().WithRetryTimes(1).WithRetryHook(func(path string, attempt int, err error) {
		mu.Lock()
		retried = append(retried, fmt.Sprintf("%s#%d", path, attempt))
		mu.Unlock()
	})

	c, err := New(l, opts)
	require.NoError(t, err)
	root, err := c.Crawl(context.Background(), "/")
	require.NoError(t, err)

	a, _ := root.Get("A")
	assert.Equal(t, []string{"a1"}, names(a.Children()))
	assert.Equal(t, 2, l.Calls("/A/"))
	assert.Equal(t, []string{"/A/#1"}, retried)
	assert.EqualValues(t, 1, c.Stats().FailedAttempts)
	assert.EqualValues(t, 4, c.Stats().Jobs)
}

func TestCrawlFailsAfterExhaustedRetries(t *testing.T) {
	l := sampleTree()
	l.FailNext("/B/", 100)

	root, err := Crawl(context.Background(), l, "/", DefaultOptions().WithRetryTimes(1))
	require.Error(t, err)
	assert.Nil(t, root)

	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "/B/", exhausted.Path)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, 2, l.Calls("/B/"))
	assert.Zero(t, l.Calls("/B/B1/"), "children of a failed folder are never listed")
}

func TestCrawlMissingRootFails(t *testing.T) {
	l := listing.NewMemoryLister()
	_, err := Crawl(context.Background(), l, "/nope", DefaultOptions().WithRetryTimes(0))
	assert.ErrorIs(t, err, listing.ErrNotFound)
}

func TestCrawlNonRecursive(t *testing.T) {
	l := sampleTree()

	root, err := Crawl(context.Background(), l, "/", DefaultOptions().WithRecursive(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "f"}, names(root))

	a, _ := root.Get("A")
	assert.Nil(t, a.Children())
	assert.EqualValues(t, 1, l.TotalCalls())
}

func TestCrawlSubfolderRoot(t *testing.T) {
	l := sampleTree()

	root, err := Crawl(context.Background(), l, "B", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, names(root))
	b1, _ := root.Get("B1")
	assert.Equal(t, "/B/B1/", b1.Entry.ResolvedPath)
	assert.EqualValues(t, 2, l.TotalCalls())
}

func TestCrawlProgressCountsJobs(t *testing.T) {
	l := sampleTree()

	var mu sync.Mutex
	var pending []int
	opts := DefaultOptions().WithConcurrency(1).WithProgress(func(n int) {
		mu.Lock()
		pending = append(pending, n)
		mu.Unlock()
	})

	_, err := Crawl(context.Background(), l, "/", opts)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	// Serial crawl: "/" queues A and B, A queues nothing, B queues B1.
	assert.Equal(t, []int{2, 1, 1, 0}, pending)
}

func TestCrawlExcludePatterns(t *testing.T) {
	l := sampleTree()
	opts := DefaultOptions()
	require.NoError(t, opts.AddExcludePattern(`^/B/$`))

	root, err := Crawl(context.Background(), l, "/", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "f"}, names(root))
	assert.Zero(t, l.Calls("/B/"))
}

func TestCrawlDuplicateNamesLastWins(t *testing.T) {
	l := listing.NewMemoryLister()
	l.AddFile("/", "x", 1)
	l.AddFile("/", "x", 2)

	root, err := Crawl(context.Background(), l, "/", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, root.Len())
	x, _ := root.Get("x")
	assert.EqualValues(t, 2, x.Entry.RawSizeBytes)
}

func TestCrawlCancel(t *testing.T) {
	l := sampleTree()
	l.SetLatency(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	root, err := Crawl(ctx, l, "/", DefaultOptions())
	assert.Nil(t, root)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCrawlerSingleUse(t *testing.T) {
	c, err := New(sampleTree(), nil)
	require.NoError(t, err)
	_, err = c.Crawl(context.Background(), "/")
	require.NoError(t, err)
	_, err = c.Crawl(context.Background(), "/")
	assert.ErrorIs(t, err, ErrCrawlerUsed)
}

func TestNewRejectsBadOptions(t *testing.T) {
	l := sampleTree()
	_, err := New(l, DefaultOptions().WithRetryTimes(-1))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, l.TotalCalls())
}

func TestCrawlNamesWithReservedCharacters(t *testing.T) {
	l := listing.NewMemoryLister()
	for _, name := range []string{"50%% off", "a/b", "a%%b"} {
		d := l.AddDir("/", name)
		l.AddFile(d, "inside", 1)
	}

	root, err := Crawl(context.Background(), l, "/", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, root.Len())

	want := map[string]string{
		"50%% off": "/50%25%25 off/",
		"a/b":      "/a%%b/",
		"a%%b":     "/a%25%25b/",
	}
	for name, resolved := range want {
		it, ok := root.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, resolved, it.Entry.ResolvedPath, name)
		require.NotNil(t, it.Children(), name)
		assert.Equal(t, []string{"inside"}, names(it.Children()), name)
		assert.Equal(t, 1, l.Calls(resolved), name)
	}
}

func TestCrawlDotNamedFoldersTerminate(t *testing.T) {
	var mu sync.Mutex
	requested := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested[r.URL.Path]++
		mu.Unlock()

		if r.URL.Path == "/" {
			fmt.Fprintf(w, `{"data":{"files":[{"name":"..","mimeType":%q},{"name":".","mimeType":%q},{"name":"f","mimeType":"text/plain","size":"3"}]}}`,
				entry.FolderMimeType, entry.FolderMimeType)
			return
		}
		fmt.Fprint(w, `{"data":{"files":[]}}`)
	}))
	defer server.Close()

	client, err := listing.NewClient(listing.Options{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	root, err := Crawl(ctx, client, "/", DefaultOptions().WithRetryTimes(0))
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "f"}, names(root))

	dotdot, _ := root.Get("..")
	assert.Equal(t, "/%2E%2E/", dotdot.Entry.ResolvedPath)
	require.NotNil(t, dotdot.Children())
	assert.Zero(t, dotdot.Children().Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"/": 1, "/%2E%2E/": 1, "/%2E/": 1}, requested)
}

func TestCrawlIgnoresResultsAfterFailure(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan string, 2)
	lister := listing.Func(func(ctx context.Context, path, rootID string) ([]entry.RawRecord, error) {
		switch path {
		case "/":
			return []entry.RawRecord{
				{Name: "bad", MimeType: entry.FolderMimeType},
				{Name: "slow1", MimeType: entry.FolderMimeType},
				{Name: "slow2", MimeType: entry.FolderMimeType},
			}, nil
		case "/bad/":
			return nil, errors.New("boom")
		default:
			// Siblings finish only after the crawl has settled.
			<-release
			defer func() { finished <- path }()
			return []entry.RawRecord{{Name: "late", MimeType: "text/plain"}}, nil
		}
	})

	var mu sync.Mutex
	var progress []int
	opts := DefaultOptions().WithConcurrency(3).WithRetryTimes(1).WithProgress(func(n int) {
		mu.Lock()
		progress = append(progress, n)
		mu.Unlock()
	})

	c, err := New(lister, opts)
	require.NoError(t, err)
	root, err := c.Crawl(context.Background(), "/")
	assert.Nil(t, root)
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "/bad/", exhausted.Path)

	close(release)
	for i := 0; i < 2; i++ {
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("slow listings never returned")
		}
	}
	// run records a result after its listing returns; give it the chance.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{3}, progress)
	mu.Unlock()
	assert.EqualValues(t, 1, c.Stats().Jobs)
}
