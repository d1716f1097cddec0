package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Orchestrator.mu
	lock      *projectLock
	abandoned bool

	// inherited is the lock of the abandoned build this one replaced
	inherited *projectLock
}

// projectLock is the held lock file of a project. An abandoned build cannot be waited for, so
// its lock is handed to the build that replaced it and only the current owner unlocks it.
type projectLock struct {
	mu    sync.Mutex
	fl    *flock.Flock
	owner *inflight
}

// release unlocks the file if slot still owns it
func (p *projectLock) release(slot *inflight) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.owner != slot {
		return nil
	}

	p.owner = nil
	return p.fl.Unlock()
}

func (p *projectLock) takeOver(slot *inflight) {
	p.mu.Lock()
	p.owner = slot
	p.mu.Unlock()
}

// acquire registers a build for root and returns its slot and context.
// release must be called exactly once when the build ends.
func (o *Orchestrator) acquire(ctx context.Context, root string, terminate bool) (*inflight, context.Context, func(), error) {
	var inherited *projectLock

	for {
		o.mu.Lock()
		cur, busy := o.inflight[root]
		if !busy {
			buildCtx, cancel := context.WithCancel(ctx)
			me := &inflight{cancel: cancel, done: make(chan struct{}), inherited: inherited}
			o.inflight[root] = me
			o.mu.Unlock()

			release := func() {
				cancel()

				o.mu.Lock()
				if o.inflight[root] == me {
					delete(o.inflight, root)
				}
				o.mu.Unlock()

				close(me.done)
			}

			return me, buildCtx, release, nil
		}
		o.mu.Unlock()

		if !terminate {
			return nil, nil, nil, ErrBuildInProgress
		}

		o.log.Info().Str("root", root).Msg("Terminating in-flight build")
		cur.cancel()

		timer := time.NewTimer(o.terminateTimeout)
		select {
		case <-cur.done:
			timer.Stop()
		case <-timer.C:
			// The old build is abandoned; it will not remove our entry when it finishes
			o.log.Warn().Str("root", root).Dur("timeout", o.terminateTimeout).Msg("In-flight build did not stop in time")
			o.mu.Lock()
			if o.inflight[root] == cur {
				delete(o.inflight, root)
			}
			cur.abandoned = true
			if cur.lock != nil {
				inherited = cur.lock
			}
			o.mu.Unlock()
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, nil, ctx.Err()
		}
	}
}

// Cancel stops the in-flight build of the project at root, if any
func (o *Orchestrator) Cancel(root string) bool {
	root = cleanRoot(root)

	o.mu.Lock()
	cur, ok := o.inflight[root]
	o.mu.Unlock()

	if !ok {
		return false
	}

	cur.cancel()
	return true
}

// Building reports whether a build of root is in flight
func (o *Orchestrator) Building(root string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, ok := o.inflight[cleanRoot(root)]
	return ok
}
