package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/eren23/attocode-core/internal/metrics"
	"github.com/eren23/attocode-core/internal/telemetry"
)

// SpawnFunc executes one node's work. The returned error, if non-nil,
// causes the Pool to call Graph.MarkFailed for that node.
type SpawnFunc func(ctx context.Context, n *Node) error

// Pool drains a Graph with a bounded number of concurrent workers, polling
// GetReadyBatch as nodes complete rather than committing to a single static
// plan up front - this lets a node that unblocks early start immediately
// instead of waiting for its whole level to finish.
type Pool struct {
	graph       *Graph
	claims      *FileClaims
	agentID     string
	concurrency int
	spawn       SpawnFunc
	tracer      *telemetry.Tracer
	metrics     *metrics.Metrics
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Graph       *Graph
	Claims      *FileClaims
	AgentID     string
	Concurrency int
	Spawn       SpawnFunc
	Tracer      *telemetry.Tracer
	Metrics     *metrics.Metrics
}

// NewPool constructs a Pool. If Claims is nil, file-claim tracking is skipped
// entirely (useful when the caller's nodes carry no file footprints).
func NewPool(cfg PoolConfig) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pool{
		graph:       cfg.Graph,
		claims:      cfg.Claims,
		agentID:     cfg.AgentID,
		concurrency: concurrency,
		spawn:       cfg.Spawn,
		tracer:      cfg.Tracer,
		metrics:     cfg.Metrics,
	}
}

// RunResult summarizes one Pool.Run invocation.
type RunResult struct {
	Done    []string
	Failed  []string
	Skipped []string
}

// Run drains the graph to completion: every node reaches StatusDone,
// StatusFailed, or StatusSkipped. A node starts the instant its own
// dependencies are satisfied and a worker slot is free - it never waits for
// unrelated siblings that happened to become ready in the same tick. Run
// returns once no more progress is possible (the ready set is empty and no
// worker is in flight).
func (p *Pool) Run(ctx context.Context) (RunResult, error) {
	if _, err := p.graph.GetExecutionOrder(); err != nil {
		return RunResult{}, err
	}

	var (
		mu       sync.Mutex
		result   RunResult
		sem      = make(chan struct{}, p.concurrency)
		inFlight = make(map[string]bool)
		wake     = make(chan struct{}, 1)
	)

	notify := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	// dispatch launches every currently-ready node that isn't already
	// running and reports how many it started. Admission onto sem can
	// block this call when the pool is already at full concurrency; that
	// is the intended throttle, not a stall.
	dispatch := func() int {
		started := 0
		for _, n := range p.graph.GetReadyBatch() {
			mu.Lock()
			busy := inFlight[n.ID]
			if !busy {
				inFlight[n.ID] = true
			}
			mu.Unlock()
			if busy {
				continue
			}

			p.graph.MarkRunning(n.ID)
			sem <- struct{}{}
			started++
			go func(node *Node) {
				p.runOne(ctx, node, &mu, &result, inFlight)
				<-sem
				notify()
			}(n)
		}
		return started
	}

	for {
		started := dispatch()

		mu.Lock()
		anyInFlight := len(inFlight) > 0
		mu.Unlock()

		if started == 0 && !anyInFlight {
			return result, nil
		}
		if started == 0 {
			<-wake
		}
	}
}

func (p *Pool) runOne(ctx context.Context, n *Node, mu *sync.Mutex, result *RunResult, inFlight map[string]bool) {
	defer func() {
		mu.Lock()
		delete(inFlight, n.ID)
		mu.Unlock()
	}()

	taskCtx := ctx
	var endSpan func(outcome string)
	start := time.Now()
	if p.tracer != nil {
		sctx, span := p.tracer.StartAoTTask(ctx, n.ID)
		taskCtx = sctx
		endSpan = func(outcome string) {
			if p.metrics != nil {
				p.metrics.RecordAoTTaskDuration(outcome, time.Since(start))
			}
			span.End()
		}
	} else {
		endSpan = func(string) {}
	}

	if p.claims != nil {
		if err := p.claims.ClaimAll(p.agentID, n.ID, n.TargetFiles, n.ReadFiles); err != nil {
			skipped := p.graph.MarkFailed(n.ID)
			mu.Lock()
			result.Failed = append(result.Failed, n.ID)
			result.Skipped = append(result.Skipped, skipped...)
			mu.Unlock()
			p.recordTaskOutcomes("failed", skipped)
			endSpan("failed")
			return
		}
		defer p.claims.ReleaseAll(n.ID, append(append([]string{}, n.TargetFiles...), n.ReadFiles...))
	}

	err := p.spawn(taskCtx, n)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		skipped := p.graph.MarkFailed(n.ID)
		result.Failed = append(result.Failed, n.ID)
		result.Skipped = append(result.Skipped, skipped...)
		p.recordTaskOutcomes("failed", skipped)
		endSpan("failed")
		return
	}
	p.graph.MarkDone(n.ID)
	result.Done = append(result.Done, n.ID)
	if p.metrics != nil {
		p.metrics.RecordAoTTask("done")
	}
	endSpan("done")
}

// recordTaskOutcomes records one failed node plus every node it cascaded a
// skip to.
func (p *Pool) recordTaskOutcomes(status string, skipped []string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordAoTTask(status)
	for range skipped {
		p.metrics.RecordAoTTask("skipped")
	}
}
