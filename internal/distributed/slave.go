package distributed

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/kestrelrun/dispatch/internal/registry"
	"github.com/kestrelrun/dispatch/internal/sentinel"
	"github.com/kestrelrun/dispatch/internal/wire"
	"github.com/kestrelrun/dispatch/internal/workerloop"
)

// RunSlave parses masterAddr (spec §6's "host|port" MASTER format), dials
// it, looks up funcName in the process-wide registry, and runs the
// worker-side loop until the master sends a terminator frame or the
// connection drops (spec §4.9). Each remote host the master lists runs
// exactly one RunSlave, matching the master listing a host once per worker
// it wants there.
func RunSlave(ctx context.Context, masterAddr, funcName string) error {
	fn, ok := registry.Lookup(funcName)
	if !ok {
		return fmt.Errorf("distributed: %w: %s", sentinel.ErrNoSuchFunc, funcName)
	}

	host, port, ok := strings.Cut(masterAddr, "|")
	if !ok {
		return fmt.Errorf("distributed: MASTER %q is not in \"host|port\" form", masterAddr)
	}
	dialAddr := net.JoinHostPort(host, port)

	conn, err := net.Dial("tcp", dialAddr)
	if err != nil {
		return fmt.Errorf("distributed: dialing master %s: %w", dialAddr, err)
	}
	defer conn.Close()

	ch := wire.NewChannel(conn)
	return workerloop.Run(ctx, ch, fn)
}
