// Package agentrt spawns and supervises the set of long-running chain
// tasks that make up a scraper process: one task per configured chain,
// run concurrently, with the first fatal error cancelling the rest.
package agentrt

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tos-network/ichain-scraper/log"
)

// ChainTask is anything that can be driven as one of the runtime's
// concurrent chain tasks; *chainscraper.Scraper satisfies this.
type ChainTask interface {
	Run(ctx context.Context) error
}

// Runtime holds the set of chain tasks to run, keyed by chain name for
// logging.
type Runtime struct {
	names []string
	tasks []ChainTask
	log   *log.Logger
}

// New creates an empty Runtime.
func New() *Runtime {
	return &Runtime{log: log.New("component", "agentrt")}
}

// Register adds a chain task under the given name. Registration order
// has no effect on scheduling; every task starts together in Run.
func (r *Runtime) Register(name string, task ChainTask) {
	r.names = append(r.names, name)
	r.tasks = append(r.tasks, task)
}

// Run starts every registered task concurrently and blocks until all
// have returned. If any task returns a non-nil error, the shared context
// passed to every task is cancelled and Run returns that first error;
// the remaining tasks are expected to observe the cancellation at their
// next suspension point and return promptly.
func (r *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range r.tasks {
		name := r.names[i]
		task := r.tasks[i]
		g.Go(func() error {
			r.log.Info("starting chain task", "chain", name)
			err := task.Run(gctx)
			if err != nil && gctx.Err() == nil {
				r.log.Error("chain task exited with a fatal error", "chain", name, "err", err)
			} else {
				r.log.Info("chain task stopped", "chain", name)
			}
			return err
		})
	}
	return g.Wait()
}
