package crawl

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/listing"
	"github.com/michaelscutari/dredge/internal/logging"
	"github.com/michaelscutari/dredge/internal/pathutil"
)

// Stats summarizes a crawl.
type Stats struct {
	Jobs           int64 // successfully completed jobs
	ListCalls      int64 // listing attempts, failures included
	FailedAttempts int64
	PeakInFlight   int
}

type result struct {
	root *entry.Node
	err  error
}

// Crawler lists a remote tree with a bounded number of jobs in flight.
// Capacity is refilled whenever a job finishes; there are no idle workers.
// A Crawler runs one crawl.
type Crawler struct {
	lister listing.Lister
	opts   *Options
	asm    *assembler
	log    *slog.Logger
	limit  int

	// mu guards everything below it.
	mu       sync.Mutex
	started  bool
	queue    Queue
	inFlight int
	peak     int
	settled  bool
	root     *entry.Node
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan result

	jobs      atomic.Int64
	listCalls atomic.Int64
	failures  atomic.Int64
}

// New creates a crawler. Options are validated before anything runs.
func New(lister listing.Lister, opts *Options) (*Crawler, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Crawler{
		lister: lister,
		opts:   opts,
		asm: &assembler{
			norm:      entry.Normalizer{BaseURL: opts.BaseURL},
			rootID:    opts.RootID,
			recursive: opts.Recursive,
			exclude:   opts.ShouldExclude,
		},
		log:   logger,
		limit: opts.limit(),
		done:  make(chan result, 1),
	}, nil
}

// Crawl lists the tree under rootPath and returns its root node. It settles
// exactly once: with the full tree when the queue is empty and nothing is in
// flight, or with the first error that exhausts its retries. No partial tree
// is returned on failure. Cancelling ctx stops the crawl with ctx's error.
func Crawl(ctx context.Context, lister listing.Lister, rootPath string, opts *Options) (*entry.Node, error) {
	c, err := New(lister, opts)
	if err != nil {
		return nil, err
	}
	return c.Crawl(ctx, rootPath)
}

// Crawl runs the crawl. See the package-level Crawl.
func (c *Crawler) Crawl(ctx context.Context, rootPath string) (*entry.Node, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, ErrCrawlerUsed
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.root = entry.NewNode()

	root := pathutil.FolderPath(rootPath)
	c.log.Debug("crawl start", "root", root, "concurrency", c.limit, "retries", c.opts.RetryTimes, "recursive", c.opts.Recursive)
	c.queue.Push(Job{Path: root})
	c.drive()
	c.mu.Unlock()
	defer c.cancel()

	select {
	case res := <-c.done:
		return res.root, res.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	c.settle(nil, ctx.Err())
	c.mu.Unlock()
	res := <-c.done
	return res.root, res.err
}

// Stats returns counters for the crawl so far.
func (c *Crawler) Stats() Stats {
	c.mu.Lock()
	peak := c.peak
	c.mu.Unlock()
	return Stats{
		Jobs:           c.jobs.Load(),
		ListCalls:      c.listCalls.Load(),
		FailedAttempts: c.failures.Load(),
		PeakInFlight:   peak,
	}
}

// drive fills free capacity from the queue. c.mu must be held.
func (c *Crawler) drive() {
	for c.inFlight < c.limit && c.queue.Len() > 0 {
		job, _ := c.queue.PopFront()
		c.inFlight++
		if c.inFlight > c.peak {
			c.peak = c.inFlight
		}
		c.log.Debug("dispatch", "path", job.Path, "inFlight", c.inFlight, "pending", c.queue.Len())
		go c.run(job)
	}
}

func (c *Crawler) run(job Job) {
	records, err := fetchWithRetry(c.ctx, c.countingLister(), job.Path, c.opts.RootID, c.opts.RetryTimes, func(attempt int, err error) {
		c.failures.Add(1)
		c.log.Warn("listing attempt failed", "path", job.Path, "attempt", attempt, "budget", c.opts.RetryTimes+1, "err", err)
		if c.opts.OnRetry != nil {
			c.opts.OnRetry(job.Path, attempt, err)
		}
	})

	var children []Job
	if err == nil {
		if err = c.ctx.Err(); err == nil {
			children, err = c.asm.assemble(c.root, job, records)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--

	if c.settled {
		return
	}
	if err != nil {
		c.log.Error("crawl failed", "path", job.Path, "err", err)
		c.settle(nil, err)
		return
	}

	for _, child := range children {
		c.queue.Push(child)
	}
	c.jobs.Add(1)
	c.log.Debug("done", "path", job.Path, "children", len(children), "inFlight", c.inFlight, "pending", c.queue.Len())
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(c.queue.Len())
	}

	if c.queue.Len() == 0 && c.inFlight == 0 {
		c.settle(c.root, nil)
		return
	}
	c.drive()
}

// settle records the outcome once and cancels everything still running.
// Queued jobs are dropped. c.mu must be held.
func (c *Crawler) settle(root *entry.Node, err error) {
	if c.settled {
		return
	}
	c.settled = true
	c.queue.Clear()
	c.done <- result{root: root, err: err}
	c.cancel()
}

func (c *Crawler) countingLister() listing.Lister {
	return listing.Func(func(ctx context.Context, path, rootID string) ([]entry.RawRecord, error) {
		c.listCalls.Add(1)
		return c.lister.List(ctx, path, rootID)
	})
}
