package prefstore

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Listener polls the database for commits made outside this process and
// publishes the resulting snapshots to the store's subscribers. In-process
// mutations publish directly; the poller only catches external writers.
type Listener struct {
	ticker   *time.Ticker
	done     chan bool
	store    *GormStore
	interval time.Duration
}

func NewListener(store *GormStore, interval time.Duration) *Listener {
	return &Listener{nil, make(chan bool), store, interval}
}

func (l *Listener) Start() *Listener {
	if l.ticker != nil {
		return l
	}

	l.ticker = time.NewTicker(l.interval)

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for {
			select {
			case <-l.done:
				return
			case <-l.ticker.C:
				snap, err := l.store.Read(ctx)
				if err != nil {
					log.WithFields(log.Fields{"error": err}).Warn("Preference store poll failed")
					continue
				}
				l.store.publishIfChanged(snap)
			}
		}
	}()

	return l
}

func (l *Listener) Stop() {
	l.ticker.Stop()
	l.done <- true
	l.ticker = nil
}
