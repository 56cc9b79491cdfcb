package coordinator

import (
	"context"
	"time"
)

// countRefresher re-fetches the item count on a ticker so a persistent
// badge stays approximately fresh without user action. It must be stopped
// when the coordinator goes away.
type countRefresher struct {
	coord    *Coordinator
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func newCountRefresher(coord *Coordinator, interval time.Duration) *countRefresher {
	return &countRefresher{
		coord:    coord,
		interval: interval,
	}
}

func (r *countRefresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fetchCtx, cancel := context.WithTimeout(ctx, r.coord.opts.RemoteTimeout)
				r.coord.ItemCount(fetchCtx)
				cancel()
			}
		}
	}()
}

func (r *countRefresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
