package sync

import (
	"context"
	"sync"
)

// gate serializes writers per item id in strict arrival order. Each writer
// chains onto the previous tail channel for its id; closing the channel on
// release admits the next writer. Writers for distinct ids never wait on
// each other.
type gate struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newGate() *gate {
	return &gate{tails: make(map[string]chan struct{})}
}

// enter blocks until every earlier writer for id has released, then returns
// a release func. If ctx is canceled while waiting, enter returns the
// context error and hands the slot to the next writer once the predecessor
// finishes, preserving order for writers still in line.
func (g *gate) enter(ctx context.Context, id string) (func(), error) {
	g.mu.Lock()
	prev := g.tails[id]
	cur := make(chan struct{})
	g.tails[id] = cur
	g.mu.Unlock()

	release := func() {
		close(cur)
		g.mu.Lock()
		if g.tails[id] == cur {
			delete(g.tails, id)
		}
		g.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep the chain intact: successors still wait for the
			// predecessor before this abandoned slot passes through.
			go func() {
				<-prev
				release()
			}()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
