// Package distributed implements the distributed substrate: a TCP master
// that SSH-spawns one worker process per remote slot and waits for each to
// connect back, then dispatches exactly like the process pool but over
// RemoteWorker connections instead of pipes (spec §4.8, §4.9). Grounded on
// hnakamur-remoteworkers' master/worker split, with connect-back over plain
// TCP instead of WebSocket.
package distributed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kestrelrun/dispatch/internal/interrupt"
	"github.com/kestrelrun/dispatch/internal/jobfactory"
	"github.com/kestrelrun/dispatch/internal/remote"
	"github.com/kestrelrun/dispatch/internal/sentinel"
)

// CommandFunc builds the command that starts one worker on host. The
// default, DefaultCommand, runs the current binary over ssh with MASTER and
// DISPATCH_WORKER_FUNC set inline in the remote shell invocation, since ssh
// does not forward the local process's environment by default.
type CommandFunc func(host, masterAddr string, masterPort int, funcName string) *exec.Cmd

// DefaultCommand runs `ssh host 'MASTER=addr|port DISPATCH_WORKER_FUNC=name
// <path-to-this-binary>'`, assuming the same binary is deployed at the same
// path on every remote host (spec §2's registration contract). MASTER uses
// "|" rather than ":" to separate host from port (spec §6) so an IPv6
// advertise address, which already contains colons, parses unambiguously.
func DefaultCommand(host, masterAddr string, masterPort int, funcName string) *exec.Cmd {
	self := os.Args[0]
	remoteCmd := fmt.Sprintf("MASTER=%s|%d DISPATCH_WORKER_FUNC=%s %s",
		masterAddr, masterPort, funcName, self)
	return exec.Command("ssh", host, remoteCmd)
}

// Hooks mirrors the instrumentation options spec §4.11 lists.
type Hooks[I, O any] struct {
	Start  func(item I, index int)
	Finish func(item I, index int, result O, err error)
}

// Master listens for remote workers to connect back, spawns them over SSH
// (or CommandFunc's override), and dispatches work across them once they
// have all checked in.
type Master[I, O any] struct {
	ln      net.Listener
	cmdFunc CommandFunc

	mu      sync.Mutex
	workers []*remote.Worker
	cmds    []*exec.Cmd
}

// Listen binds the master's accept socket. addr may be empty to bind an
// ephemeral port on all interfaces.
func Listen[I, O any](addr string, cmdFunc CommandFunc) (*Master[I, O], error) {
	if addr == "" {
		addr = ":0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("distributed: listen: %w", err)
	}
	if cmdFunc == nil {
		cmdFunc = DefaultCommand
	}
	return &Master[I, O]{ln: ln, cmdFunc: cmdFunc}, nil
}

// Port reports the bound listener's port, for building the MASTER address
// passed to remote workers.
func (m *Master[I, O]) Port() int {
	_, portStr, _ := net.SplitHostPort(m.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return port
}

// SpawnAndWait starts one worker command per host entry in hosts (a host
// appearing N times requests N workers on that host) and blocks until every
// one has connected back or timeout elapses, pacing SSH spawns with a
// token-bucket limiter so a large host list doesn't open hundreds of SSH
// connections at once.
func (m *Master[I, O]) SpawnAndWait(ctx context.Context, hosts []string, masterAddr, funcName string, timeout time.Duration) error {
	limiter := rate.NewLimiter(rate.Limit(4), 1) // at most 4 SSH spawns/sec

	for _, host := range hosts {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		cmd := m.cmdFunc(host, masterAddr, m.Port(), funcName)
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("distributed: starting worker on %s: %w", host, err)
		}
		m.mu.Lock()
		m.cmds = append(m.cmds, cmd)
		m.mu.Unlock()
	}

	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		connected := len(m.workers)
		m.mu.Unlock()
		if connected >= len(hosts) {
			return nil
		}
		if time.Now().After(deadline) {
			// Spec §4.8 step 4 / §7: a timed-out spawn still owns every ssh
			// child it already started — quit and reap them before handing
			// the caller an error, same as a completed Run would.
			m.KillAll()
			m.reapChildren()
			m.closeListener()
			return sentinel.ErrRemoteWorkerTimeout
		}

		_ = m.ln.(*net.TCPListener).SetDeadline(deadline)
		conn, err := m.ln.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "timeout") {
				continue
			}
			m.KillAll()
			m.reapChildren()
			m.closeListener()
			return fmt.Errorf("distributed: accept: %w", err)
		}

		m.mu.Lock()
		m.workers = append(m.workers, remote.New(conn))
		m.mu.Unlock()
	}
}

// KillAll closes every remote connection and kills every locally-spawned
// SSH command, implementing interrupt.Killer. It does not wait for the
// killed commands to exit; call reapChildren for that.
func (m *Master[I, O]) KillAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workers {
		_ = w.Kill()
	}
	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// reapChildren waits for every spawned ssh command to exit, so the master
// never leaves a zombie process behind whether those commands exited on
// their own (the remote worker quit when its connection closed) or were
// just killed by KillAll. Spec §7: "the master always reaps or kills every
// worker it spawned before returning."
func (m *Master[I, O]) reapChildren() {
	m.mu.Lock()
	cmds := append([]*exec.Cmd(nil), m.cmds...)
	m.cmds = nil
	m.mu.Unlock()

	for _, cmd := range cmds {
		if cmd.Process != nil {
			_ = cmd.Wait()
		}
	}
}

// closeListener closes the accept socket once it is no longer needed. Nils
// out m.ln first so it is safe to call from more than one exit path (Run's
// teardown, SpawnAndWait's error paths) without double-closing.
func (m *Master[I, O]) closeListener() {
	m.mu.Lock()
	ln := m.ln
	m.ln = nil
	m.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

// Run dispatches factory across every connected worker, one driver
// goroutine per worker, and closes all connections on completion.
func (m *Master[I, O]) Run(ctx context.Context, factory *jobfactory.Factory[I], hooks Hooks[I, O], interruptSig os.Signal, discardResult bool) ([]O, error) {
	var results []O
	var exception error
	var killed bool

	runErr := interrupt.New(interruptSig).Guard("distributed pool", m, func() error {
		results, exception, killed = m.dispatch(ctx, factory, hooks, discardResult)
		return nil
	})
	if runErr != nil {
		exception = runErr
	}

	// KillAll already tore down every connection inside dispatch; closing
	// them again here would just be closing dead conns.
	if !killed {
		m.mu.Lock()
		for _, w := range m.workers {
			_ = w.Close()
		}
		m.mu.Unlock()
	}

	// Every path out of here — success, Break, or Kill — owes the ssh
	// children a reap and the accept socket a close. KillAll (if it ran)
	// already signaled the children; reapChildren here is what actually
	// waits on them instead of leaving zombies.
	m.reapChildren()
	m.closeListener()

	if exception != nil {
		return nil, sentinel.Classify(exception)
	}
	return results, nil
}

// dispatch fans factory out across one goroutine per connected worker. A
// Break from fn stops further dispatch but lets in-flight workers finish
// their current job; a Kill additionally cancels ctx and hard-closes every
// worker connection (and kills every locally-spawned ssh command) right
// away, per spec §4.7 step 4 — survivors don't finish what they're holding.
func (m *Master[I, O]) dispatch(ctx context.Context, factory *jobfactory.Factory[I], hooks Hooks[I, O], discardResult bool) ([]O, error, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var exception error
	var killOnce sync.Once
	var killed bool
	res := newResults[O](factory.Size())

	m.mu.Lock()
	workers := append([]*remote.Worker(nil), m.workers...)
	m.mu.Unlock()

	for _, w := range workers {
		w := w
		g.Go(func() error {
			for {
				mu.Lock()
				stop := exception != nil
				mu.Unlock()
				if stop {
					return nil
				}

				pair, ok := factory.Next(ctx)
				if !ok {
					return nil
				}

				if hooks.Start != nil {
					mu.Lock()
					hooks.Start(pair.Item, pair.Index)
					mu.Unlock()
				}

				raw, err := w.Work(pair.Item, pair.Index, discardResult)
				var result O
				if err == nil {
					if r, ok := raw.(O); ok {
						result = r
					}
				}

				if hooks.Finish != nil {
					mu.Lock()
					hooks.Finish(pair.Item, pair.Index, result, err)
					mu.Unlock()
				}

				if err != nil {
					isKill := errors.Is(err, sentinel.ErrKill)

					mu.Lock()
					// First failure wins: once something has stopped dispatch,
					// later errors are usually just fallout from that (e.g. a
					// killed worker's connection breaking under a sibling
					// goroutine) and shouldn't clobber the real cause.
					if exception == nil {
						exception = err
					}
					mu.Unlock()

					if isKill {
						killOnce.Do(func() {
							killed = true
							cancel()
							m.KillAll()
						})
					}
					return nil
				}

				res.set(pair.Index, result)
			}
		})
	}

	_ = g.Wait()

	if exception != nil {
		return nil, exception, killed
	}
	return res.slice(), nil, false
}

type results[O any] struct {
	mu   sync.Mutex
	vals []O
}

func newResults[O any](size int) *results[O] {
	if size < 0 {
		size = 0
	}
	return &results[O]{vals: make([]O, size)}
}

func (r *results[O]) set(index int, v O) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index >= len(r.vals) {
		grown := make([]O, index+1)
		copy(grown, r.vals)
		r.vals = grown
	}
	r.vals[index] = v
}

func (r *results[O]) slice() []O {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]O, len(r.vals))
	copy(out, r.vals)
	return out
}
