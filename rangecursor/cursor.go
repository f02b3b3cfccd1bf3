// Package rangecursor implements the single-chain sliding-window block
// range cursor: it advances a (from, to) window over a chain's height
// axis, enforces a maximum chunk size, rate-limits tip refreshes, and
// supports backtracking when the scraper detects a continuity break.
package rangecursor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/tos-network/ichain-scraper/log"
)

// TipFetcher is the subset of the provider interface the cursor needs to
// refresh its notion of chain head.
type TipFetcher interface {
	Tip(ctx context.Context) (uint32, error)
}

// Config configures a Cursor's rate-limiting behavior.
type Config struct {
	ChunkSize uint32
	// MinPollInterval is the minimum time between tip-refresh RPCs, used
	// as the rate.Limiter's rate whenever the cursor is behind the tip or
	// has just caught back up. A burst of 1 means "at most one
	// fetch_logs per interval".
	MinPollInterval float64 // events per second, i.e. 1/seconds
	// MaxPollInterval bounds how slow polling is allowed to get. Every
	// consecutive NextRange call that finds the cursor still caught up
	// to the tip doubles the wait interval, capped here; the next call
	// that finds new blocks resets it back to MinPollInterval.
	MaxPollInterval float64 // events per second, i.e. 1/seconds; 0 disables the ramp
}

// Cursor is the block-range cursor state machine driving one chain's
// sync loop. It is not self-advancing: Update/Backtrack are the only
// ways current changes, so a single owning goroutine can read/write it
// without locks.
type Cursor struct {
	domain    uint32
	current   uint32
	chunkSize uint32
	tip       uint32
	tipFetch  TipFetcher

	limiter     *rate.Limiter
	minInterval time.Duration
	maxInterval time.Duration
	curInterval time.Duration

	log *log.Logger
}

// New creates a Cursor starting at `from` for the given domain.
func New(domain uint32, from uint32, tipFetch TipFetcher, cfg Config) *Cursor {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1
	}
	limit := rate.Limit(cfg.MinPollInterval)
	if limit <= 0 {
		limit = rate.Inf
	}

	var minInterval, maxInterval time.Duration
	if cfg.MinPollInterval > 0 {
		minInterval = time.Duration(float64(time.Second) / cfg.MinPollInterval)
	}
	maxInterval = minInterval
	if cfg.MaxPollInterval > 0 {
		if ramped := time.Duration(float64(time.Second) / cfg.MaxPollInterval); ramped > maxInterval {
			maxInterval = ramped
		}
	}

	return &Cursor{
		domain:      domain,
		current:     from,
		chunkSize:   cfg.ChunkSize,
		tipFetch:    tipFetch,
		limiter:     rate.NewLimiter(limit, 1),
		minInterval: minInterval,
		maxInterval: maxInterval,
		curInterval: minInterval,
		log:         log.New("component", "rangecursor", "domain", domain),
	}
}

// CurrentPosition returns the cursor's current height.
func (c *Cursor) CurrentPosition() uint32 {
	return c.current
}

// NextRange returns the next (from, to) window to scan. If current has
// caught up to the last known tip, it refreshes the tip; if still caught
// up afterwards, it waits out the rate limit and returns an empty range
// at the current height so the caller can treat it as "nothing new yet".
func (c *Cursor) NextRange(ctx context.Context) (from, to uint32, err error) {
	if c.current >= c.tip {
		newTip, err := c.tipFetch.Tip(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("rangecursor: refresh tip: %w", err)
		}
		c.tip = newTip
	}

	if c.current >= c.tip {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, 0, fmt.Errorf("rangecursor: rate limit wait: %w", err)
		}
		c.rampUp()
		return c.current, c.current, nil
	}

	c.rampDown()

	to = c.current + c.chunkSize
	if to > c.tip {
		to = c.tip
	}
	return c.current, to, nil
}

// rampUp doubles the wait interval up to maxInterval, called after a poll
// finds the cursor still caught up to the tip.
func (c *Cursor) rampUp() {
	if c.minInterval <= 0 || c.curInterval >= c.maxInterval {
		return
	}
	next := c.curInterval * 2
	if next > c.maxInterval {
		next = c.maxInterval
	}
	c.curInterval = next
	c.limiter.SetLimit(rate.Limit(float64(time.Second) / float64(c.curInterval)))
}

// rampDown resets the wait interval to minInterval, called once new blocks
// are found after the cursor had fallen behind or caught up and ramped.
func (c *Cursor) rampDown() {
	if c.minInterval <= 0 || c.curInterval == c.minInterval {
		return
	}
	c.curInterval = c.minInterval
	c.limiter.SetLimit(rate.Limit(float64(time.Second) / float64(c.minInterval)))
}

// Update commits a successfully-processed range by advancing current
// past `to`. It is the only way current moves forward; the sync loop
// decides whether a fetched range was good enough to commit.
func (c *Cursor) Update(to uint32) {
	if to+1 > c.current {
		c.current = to + 1
	}
}

// Backtrack rewinds current to height, if height is earlier. Idempotent:
// calling it again with a height >= current is a no-op.
func (c *Cursor) Backtrack(height uint32) {
	if height < c.current {
		c.log.Debug("backtracking", "from", c.current, "to", height)
		c.current = height
	}
}
