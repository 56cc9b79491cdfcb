package localstore

import (
	"context"
	"os"
	"time"
)

// Watcher polls the backing file's mtime and invokes onChange when another
// process wrote to it. The writing process does not see its own change
// through the watcher; in-process subscribers are notified directly on the
// event bus after each mutation.
type Watcher struct {
	store    *Store
	interval time.Duration
	onChange func()
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewWatcher(store *Store, interval time.Duration, onChange func()) *Watcher {
	return &Watcher{
		store:    store,
		interval: interval,
		onChange: onChange,
	}
}

// Start begins polling until Stop is called or ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		last := w.mtime()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current := w.mtime()
				if current.Equal(last) {
					continue
				}
				last = current
				w.store.Reload()
				w.onChange()
			}
		}
	}()
}

// Stop cancels polling and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Watcher) mtime() time.Time {
	info, err := os.Stat(w.store.Path())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
