package rangecursor

import (
	"context"
	"errors"
	"testing"
)

type fakeTipFetcher struct {
	tip uint32
	err error
}

func (f *fakeTipFetcher) Tip(ctx context.Context) (uint32, error) { return f.tip, f.err }

func TestCursor_NextRange_FetchesTipThenChunks(t *testing.T) {
	c := New(1, 0, &fakeTipFetcher{tip: 100}, Config{ChunkSize: 10})
	from, to, err := c.NextRange(context.Background())
	if err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	if from != 0 || to != 10 {
		t.Fatalf("got (%d, %d), want (0, 10)", from, to)
	}
}

func TestCursor_NextRange_CapsRangeAtTip(t *testing.T) {
	c := New(1, 0, &fakeTipFetcher{tip: 5}, Config{ChunkSize: 10})
	from, to, err := c.NextRange(context.Background())
	if err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	if from != 0 || to != 5 {
		t.Fatalf("got (%d, %d), want (0, 5)", from, to)
	}
}

func TestCursor_NextRange_CaughtUpReturnsEmptyRange(t *testing.T) {
	c := New(1, 7, &fakeTipFetcher{tip: 7}, Config{ChunkSize: 10})
	from, to, err := c.NextRange(context.Background())
	if err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	if from != 7 || to != 7 {
		t.Fatalf("got (%d, %d), want (7, 7) when caught up to tip", from, to)
	}
}

func TestCursor_NextRange_PropagatesTipFetchError(t *testing.T) {
	boom := errors.New("boom")
	c := New(1, 0, &fakeTipFetcher{err: boom}, Config{ChunkSize: 10})
	_, _, err := c.NextRange(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected the tip fetch error to surface, got %v", err)
	}
}

func TestCursor_Update_AdvancesPastTo(t *testing.T) {
	c := New(1, 0, &fakeTipFetcher{tip: 100}, Config{ChunkSize: 10})
	c.Update(9)
	if got := c.CurrentPosition(); got != 10 {
		t.Fatalf("CurrentPosition() = %d, want 10", got)
	}
}

func TestCursor_Update_NeverMovesBackward(t *testing.T) {
	c := New(1, 20, &fakeTipFetcher{tip: 100}, Config{ChunkSize: 10})
	c.Update(5) // to+1 = 6, less than current 20
	if got := c.CurrentPosition(); got != 20 {
		t.Fatalf("CurrentPosition() = %d, want unchanged 20", got)
	}
}

func TestCursor_Backtrack_RewindsOnlyWhenEarlier(t *testing.T) {
	c := New(1, 50, &fakeTipFetcher{tip: 100}, Config{ChunkSize: 10})
	c.Backtrack(60) // later than current, no-op
	if got := c.CurrentPosition(); got != 50 {
		t.Fatalf("Backtrack(60) moved current to %d, want unchanged 50", got)
	}
	c.Backtrack(10)
	if got := c.CurrentPosition(); got != 10 {
		t.Fatalf("CurrentPosition() = %d, want 10 after backtrack", got)
	}
}

func TestCursor_New_ZeroChunkSizeDefaultsToOne(t *testing.T) {
	c := New(1, 0, &fakeTipFetcher{tip: 100}, Config{ChunkSize: 0})
	from, to, err := c.NextRange(context.Background())
	if err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	if from != 0 || to != 1 {
		t.Fatalf("got (%d, %d), want (0, 1) with a defaulted chunk size of 1", from, to)
	}
}

func TestCursor_NextRange_RampsPollIntervalUpToMaxWhileCaughtUp(t *testing.T) {
	tip := &fakeTipFetcher{tip: 10}
	c := New(1, 10, tip, Config{ChunkSize: 10, MinPollInterval: 1000, MaxPollInterval: 250})
	if c.curInterval != c.minInterval {
		t.Fatalf("curInterval should start at minInterval")
	}

	for i := 0; i < 5; i++ {
		if _, _, err := c.NextRange(context.Background()); err != nil {
			t.Fatalf("NextRange: %v", err)
		}
	}
	if c.curInterval != c.maxInterval {
		t.Fatalf("curInterval = %v, want it capped at maxInterval %v after repeated idle polls", c.curInterval, c.maxInterval)
	}
	if c.curInterval <= c.minInterval {
		t.Fatalf("curInterval should have ramped above minInterval, got %v vs min %v", c.curInterval, c.minInterval)
	}
}

func TestCursor_NextRange_RampResetsWhenNewBlocksAppear(t *testing.T) {
	tip := &fakeTipFetcher{tip: 10}
	c := New(1, 10, tip, Config{ChunkSize: 10, MinPollInterval: 1000, MaxPollInterval: 250})

	for i := 0; i < 5; i++ {
		if _, _, err := c.NextRange(context.Background()); err != nil {
			t.Fatalf("NextRange: %v", err)
		}
	}
	if c.curInterval == c.minInterval {
		t.Fatalf("setup: expected curInterval to have ramped before the tip advanced")
	}

	tip.tip = 20
	if _, _, err := c.NextRange(context.Background()); err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	if c.curInterval != c.minInterval {
		t.Fatalf("curInterval = %v, want reset to minInterval %v once new blocks were found", c.curInterval, c.minInterval)
	}
}
