package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/kestrelrun/dispatch/internal/distributed"
	"github.com/kestrelrun/dispatch/internal/jobfactory"
	"github.com/kestrelrun/dispatch/internal/procfacts"
	"github.com/kestrelrun/dispatch/internal/procpool"
	"github.com/kestrelrun/dispatch/internal/sentinel"
	"github.com/kestrelrun/dispatch/internal/taskpool"
)

type substrate int

const (
	substrateTask substrate = iota
	substrateDirect
	substrateProcess
	substrateDistributed
)

// resolveSubstrate implements spec §4.12's pool-size resolution: explicit
// InProcesses/InThreads force a substrate outright (InThreads taking
// precedence when both are given); a non-empty Distribute
// list forces the distributed substrate; an explicit WithCount(0) forces
// direct/serial execution; otherwise the task substrate is used, sized to
// WithCount or, absent that, the number of logical CPUs.
func resolveSubstrate(cfg *config) (substrate, int) {
	switch {
	case len(cfg.distribute) > 0:
		return substrateDistributed, len(cfg.distribute)
	case cfg.hasInThreads:
		return substrateTask, cfg.inThreads
	case cfg.hasInProcesses:
		return substrateProcess, cfg.inProcesses
	case cfg.hasCount && cfg.count == 0:
		return substrateDirect, 0
	case cfg.hasCount:
		return substrateTask, cfg.count
	default:
		return substrateTask, procfacts.ProcessorCount()
	}
}

func isBreakOrKill(err error) bool {
	return errors.Is(err, sentinel.ErrBreak) || errors.Is(err, sentinel.ErrKill)
}

// MapWithIndex runs fn over every item src yields, passing each item's
// index, and returns results in index order. A Break/Kill error from fn
// stops dispatch early and returns (nil, nil); any other error stops
// dispatch and is returned as-is.
func MapWithIndex[I, O any](ctx context.Context, src Source[I], fn func(item I, index int) (O, error), opts ...Option) ([]O, error) {
	cfg := newConfig(opts)
	return runMap[I, O](ctx, src, func(_ context.Context, item I, index int) (O, error) {
		return fn(item, index)
	}, cfg)
}

// Map runs fn over every item src yields and returns results in index
// order, regardless of completion order.
func Map[I, O any](ctx context.Context, src Source[I], fn func(item I) (O, error), opts ...Option) ([]O, error) {
	cfg := newConfig(opts)
	return runMap[I, O](ctx, src, func(_ context.Context, item I, _ int) (O, error) {
		return fn(item)
	}, cfg)
}

// EachWithIndex runs fn over every item src yields, passing each item's
// index, discarding results (PreserveResults(false) under the hood). It
// returns src back to the caller, matching spec §6's documented
// each(...) -> source contract, so a caller can chain a second pass over
// the same source without having to keep their own reference around.
func EachWithIndex[I any](ctx context.Context, src Source[I], fn func(item I, index int) error, opts ...Option) (Source[I], error) {
	cfg := newConfig(opts)
	cfg.preserveResults = false
	_, err := runMap[I, struct{}](ctx, src, func(_ context.Context, item I, index int) (struct{}, error) {
		return struct{}{}, fn(item, index)
	}, cfg)
	return src, err
}

// Each runs fn over every item src yields, discarding results, and returns
// src back to the caller (spec §6's each(...) -> source contract).
func Each[I any](ctx context.Context, src Source[I], fn func(item I) error, opts ...Option) (Source[I], error) {
	cfg := newConfig(opts)
	cfg.preserveResults = false
	_, err := runMap[I, struct{}](ctx, src, func(_ context.Context, item I, _ int) (struct{}, error) {
		return struct{}{}, fn(item)
	}, cfg)
	return src, err
}

// runMap is the single point every Map/Each entry point funnels through: it
// validates hook types, applies the throttle and progress wrapping, resolves
// the substrate, and dispatches.
func runMap[I, O any](ctx context.Context, src Source[I], fn func(context.Context, I, int) (O, error), cfg *config) ([]O, error) {
	checkHook("start", cfg.startItemType, typeName[I]())
	checkHook("finish item", cfg.finishItemType, typeName[I]())
	checkHook("finish result", cfg.finishResType, typeName[O]())

	factory := src.factory
	if cfg.maxRate > 0 {
		factory = factory.WithRateLimit(cfg.maxRate)
	}

	if cfg.progress != nil && factory.Size() < 0 {
		return nil, fmt.Errorf("dispatch: Progress requires a finite source")
	}

	var startFn func(I, int)
	if cfg.start != nil {
		startFn, _ = cfg.start.(func(I, int))
	}
	var finishFn func(I, int, O, error)
	if cfg.finish != nil {
		finishFn, _ = cfg.finish.(func(I, int, O, error))
	}
	if cfg.progress != nil {
		prevFinish := finishFn
		progress := cfg.progress
		finishFn = func(item I, index int, result O, err error) {
			if prevFinish != nil {
				prevFinish(item, index, result, err)
			}
			progress.Increment()
		}
	}

	stats := cfg.statsSink
	wrappedStart := func(item I, index int) {
		stats.onStart(index)
		if startFn != nil {
			startFn(item, index)
		}
	}
	wrappedFinish := func(item I, index int, result O, err error) {
		stats.onFinish(err)
		if finishFn != nil {
			finishFn(item, index, result, err)
		}
	}

	sub, count := resolveSubstrate(cfg)
	if cfg.interruptSignal != nil && (sub == substrateTask || sub == substrateDirect) {
		return nil, fmt.Errorf("dispatch: WithInterruptSignal requires InProcesses or WithDistribute — the task and direct substrates own no OS processes to kill")
	}
	stats.setWorkers(count)

	var results []O
	var err error

	switch sub {
	case substrateDirect:
		results, err = runDirect[I, O](ctx, factory, fn, wrappedStart, wrappedFinish)

	case substrateTask:
		if count <= 0 {
			count = 1
		}
		results, err = taskpool.Run[I, O](ctx, factory, count, fn, taskpool.Hooks[I, O]{Start: wrappedStart, Finish: wrappedFinish}, cfg.pinWorkers)

	case substrateProcess:
		results, err = runProcess[I, O](ctx, factory, count, cfg, wrappedStart, wrappedFinish)

	case substrateDistributed:
		results, err = runDistributed[I, O](ctx, factory, cfg, wrappedStart, wrappedFinish)
	}

	if err != nil {
		if isBreakOrKill(err) {
			return nil, nil
		}
		return nil, err
	}
	if !cfg.preserveResults {
		return nil, nil
	}
	return results, nil
}

func runProcess[I, O any](ctx context.Context, factory *jobfactory.Factory[I], count int, cfg *config, start func(I, int), finish func(I, int, O, error)) ([]O, error) {
	pool, err := procpool.Spawn[I, O](cfg.funcName, count)
	if err != nil {
		return nil, err
	}
	return pool.Run(ctx, factory, procpool.Hooks[I, O]{Start: start, Finish: finish}, cfg.interruptSignal, cfg.sleepAfter, !cfg.preserveResults)
}

func runDistributed[I, O any](ctx context.Context, factory *jobfactory.Factory[I], cfg *config, start func(I, int), finish func(I, int, O, error)) ([]O, error) {
	if cfg.funcName == "" {
		return nil, fmt.Errorf("dispatch: WithFunc is required for the distributed substrate")
	}

	var cmdFunc distributed.CommandFunc
	if cfg.distributeCommand != nil {
		cmdFunc = distributed.CommandFunc(cfg.distributeCommand)
	}

	listenAddr := ""
	if cfg.localAddress != "" {
		listenAddr = net.JoinHostPort(cfg.localAddress, "0")
	}
	master, err := distributed.Listen[I, O](listenAddr, cmdFunc)
	if err != nil {
		return nil, err
	}

	advertiseAddr := cfg.localAddress
	if advertiseAddr == "" {
		advertiseAddr, err = distributed.AdvertiseAddr()
		if err != nil {
			return nil, fmt.Errorf("dispatch: determining local address to advertise: %w", err)
		}
	}

	if err := master.SpawnAndWait(ctx, cfg.distribute, advertiseAddr, cfg.funcName, cfg.distributeTimeout); err != nil {
		return nil, err
	}

	return master.Run(ctx, factory, distributed.Hooks[I, O]{Start: start, Finish: finish}, cfg.interruptSignal, !cfg.preserveResults)
}
