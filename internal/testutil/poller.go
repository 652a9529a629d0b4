package testutil

import (
	"context"
	"sync"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// Response is one scripted poll result. Exactly one of Snapshot or Err is
// meaningful; Repeat is the number of consecutive polls that return it
// (values below 1 count as 1).
type Response struct {
	Snapshot ir.Snapshot
	Err      error
	Repeat   int
}

// Body returns a response carrying the JSON document body.
func Body(body string) Response {
	return Response{Snapshot: ir.MustSnapshot(body)}
}

// Fail returns a response carrying err.
func Fail(err error) Response {
	return Response{Err: err}
}

// ScriptedPoller replays a fixed sequence of responses, one per poll. The
// last response repeats forever once the script is exhausted.
//
// Thread-safety: ScriptedPoller is safe for concurrent use via internal mutex.
type ScriptedPoller struct {
	mu        sync.Mutex
	responses []Response
	idx       int
	used      int
	calls     int
	handles   []ir.Handle

	// AfterPoll, when set, runs after each poll with the 1-based call
	// number. Tests use it to cancel a wait or advance a clock.
	AfterPoll func(call int)
}

// NewScriptedPoller creates a poller replaying responses. At least one
// response is required.
func NewScriptedPoller(responses ...Response) *ScriptedPoller {
	if len(responses) == 0 {
		panic("ScriptedPoller: at least one response is required")
	}
	return &ScriptedPoller{responses: responses}
}

// Poll returns the next scripted response.
func (p *ScriptedPoller) Poll(_ context.Context, h ir.Handle) (ir.Snapshot, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.handles = append(p.handles, h)

	r := p.responses[p.idx]
	p.used++
	repeat := max(r.Repeat, 1)
	if p.used >= repeat && p.idx < len(p.responses)-1 {
		p.idx++
		p.used = 0
	}
	hook := p.AfterPoll
	p.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return r.Snapshot, r.Err
}

// Calls returns the number of polls served.
func (p *ScriptedPoller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Handles returns the handles polled, in order.
func (p *ScriptedPoller) Handles() []ir.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ir.Handle(nil), p.handles...)
}
