package netlink

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/eventsource/procinfo"
	"github.com/panjf2000/ants/v2"
)

const (
	parentCacheSize = 4096
	parentCacheTTL  = 5 * time.Minute
)

// enricher turns exec notifications, which carry only a pid, into full creation events.
type enricher struct {
	reader *procinfo.Reader
	// child tgid -> parent tgid at fork time
	parents *expirable.LRU[uint32, uint32]
	pool    *ants.Pool
}

func newEnricher(reader *procinfo.Reader, workers int) (*enricher, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating enrichment pool: %w", err)
	}
	return &enricher{
		reader:  reader,
		parents: expirable.NewLRU[uint32, uint32](parentCacheSize, nil, parentCacheTTL),
		pool:    pool,
	}, nil
}

// observe records fork ancestry and reports whether ev is an exec to be enriched.
func (e *enricher) observe(ev procEvent) bool {
	switch {
	case ev.isProcessFork():
		e.parents.Add(ev.tgid, ev.parentTgid)
	case ev.what == procEventExec:
		return true
	}
	return false
}

// enrich reads the processes in parallel. The results keep the order of execs.
func (e *enricher) enrich(execs []procEvent) []eventsource.Result {
	if len(execs) == 0 {
		return nil
	}
	results := make([]eventsource.Result, len(execs))
	var wg sync.WaitGroup
	for i, ev := range execs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = e.lookup(ev)
		}
		if err := e.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return results
}

func (e *enricher) lookup(ev procEvent) eventsource.Result {
	info, err := e.reader.Lookup(int(ev.tgid))
	if err != nil {
		return eventsource.Result{Err: fmt.Errorf("process %d exited before it could be read: %w", ev.tgid, err)}
	}
	if ppid, ok := e.parents.Get(ev.tgid); ok {
		info.PPID = ppid
	}
	return eventsource.Result{Payload: info.RawEvent()}
}

func (e *enricher) release() {
	e.pool.Release()
	e.parents.Purge()
}
