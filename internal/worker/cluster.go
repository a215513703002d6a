package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/repo"
)

// Cluster shards the active-account set across a fixed number of Workers by
// contiguous slicing, the same distribution the original cluster manager
// used to spread accounts across OS processes — here spread across
// goroutine-based Workers instead.
type Cluster struct {
	numWorkers int
	accounts   repo.AccountRepo
	deps       Deps
	log        zerolog.Logger

	workers []*Worker
	wg      sync.WaitGroup
}

// NewCluster returns a Cluster that will shard the accounts repo's active
// set across numWorkers Workers. numWorkers < 1 is treated as 1.
func NewCluster(numWorkers int, accounts repo.AccountRepo, deps Deps) *Cluster {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Cluster{
		numWorkers: numWorkers,
		accounts:   accounts,
		deps:       deps,
		log:        logging.WithComponent("cluster"),
	}
}

// Start loads active accounts, shards them into contiguous slices (the last
// worker absorbing any remainder), and runs one Worker per non-empty shard
// until ctx is cancelled.
func (c *Cluster) Start(ctx context.Context) error {
	accounts, err := c.accounts.ListActive(ctx)
	if err != nil {
		return err
	}
	c.log.Info().Int("accounts", len(accounts)).Int("workers", c.numWorkers).Msg("starting cluster")

	if len(accounts) == 0 {
		c.log.Warn().Msg("no active accounts found")
		<-ctx.Done()
		return nil
	}

	for _, shard := range shard(accounts, c.numWorkers) {
		if len(shard) == 0 {
			continue
		}
		w := New(len(c.workers), shard, c.deps)
		c.workers = append(c.workers, w)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			w.Run(ctx)
		}()
	}

	c.log.Info().Int("started", len(c.workers)).Msg("cluster started")
	c.wg.Wait()
	c.log.Info().Msg("cluster shutdown complete")
	return nil
}

// shard splits accounts into n contiguous slices, the last absorbing any
// remainder from integer division.
func shard(accounts []models.Account, n int) [][]models.Account {
	if n < 1 {
		n = 1
	}
	chunkSize := max(1, len(accounts)/n)

	shards := make([][]models.Account, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		if start >= len(accounts) {
			break
		}
		end := start + chunkSize
		if i == n-1 || end > len(accounts) {
			end = len(accounts)
		}
		shards = append(shards, accounts[start:end])
	}
	return shards
}
