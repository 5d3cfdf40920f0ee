// Package stdiotransport implements the line-delimited JSON-RPC framing
// over a byte-duplex (stdin/stdout), per spec.md 4/5: a single framing
// loop reads and dispatches messages to handlers that may run
// concurrently, while writes are serialized through a channel to one
// writer goroutine.
package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rjsadow/agentproto/internal/idgen"
	"github.com/rjsadow/agentproto/internal/reqcontext"
	"github.com/rjsadow/agentproto/internal/rpc"
	"github.com/rjsadow/agentproto/internal/telemetry"
)

// Transport drives a line-delimited JSON-RPC conversation over an
// io.Reader/io.Writer pair. A byte-duplex carries exactly one peer, so the
// transport mints a single implicit session id for the lifetime of the
// connection rather than reading it from a header — the same lifecycle
// readiness gate the HTTP transport enforces (via the shared Router) then
// applies to it, satisfying cross-transport equivalence (spec.md 8,
// invariant 8).
type Transport struct {
	reader    *bufio.Reader
	writer    io.Writer
	router    *rpc.Router
	sessionID string

	writeCh chan []byte
	wg      sync.WaitGroup

	log telemetry.Logger
}

func New(r io.Reader, w io.Writer, router *rpc.Router, log telemetry.Logger) *Transport {
	return &Transport{
		reader:    bufio.NewReader(r),
		writer:    w,
		router:    router,
		sessionID: idgen.SessionID(),
		writeCh:   make(chan []byte, 64),
		log:       log,
	}
}

// Run reads lines until EOF or ctx is cancelled, dispatching each decoded
// message to its own goroutine, and blocks until all in-flight handlers
// finish and the writer goroutine drains. EOF on stdin triggers graceful
// shutdown, per spec.md 6's stdio surface.
func (t *Transport) Run(ctx context.Context) error {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case line, ok := <-t.writeCh:
				if !ok {
					return
				}
				t.writer.Write(line)
			case <-ctx.Done():
				return
			}
		}
	}()

	var readErr error
	for {
		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 {
			t.dispatchLine(ctx, line)
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
		select {
		case <-ctx.Done():
			readErr = ctx.Err()
		default:
		}
		if readErr != nil {
			break
		}
	}

	t.wg.Wait()
	close(t.writeCh)
	<-writerDone
	return readErr
}

func (t *Transport) dispatchLine(ctx context.Context, line []byte) {
	req, rpcErr := rpc.Decode(line)
	if rpcErr != nil {
		t.writeResponse(rpc.NewErrorResponse(nil, rpcErr))
		return
	}

	ctx = reqcontext.WithSessionID(ctx, t.sessionID)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil && t.log != nil {
				t.log.Error(ctx, "stdio handler panicked", "panic", r)
			}
		}()
		resp := t.router.Dispatch(ctx, req)
		if resp != nil {
			t.writeResponse(resp)
		}
	}()
}

func (t *Transport) writeResponse(resp *rpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	t.writeCh <- data
}
