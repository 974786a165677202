package zap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"ln-ticketing/internal/logger"
)

// Listener subscribes to the configured relays for the zap receipt of one
// order. The first matching event across all relays wins; everything is torn
// down after that event or after the window elapses, whichever comes first.
type Listener struct {
	Relays []string
	Window time.Duration
	Logger *logger.Logger
}

func NewListener(relays []string, window time.Duration, log *logger.Logger) *Listener {
	return &Listener{Relays: relays, Window: window, Logger: log}
}

// Listen starts the background subscription for one order reference. It
// returns immediately; onReceipt runs at most once, from a relay goroutine.
// Errors never reach the caller: this is fire-and-forget work decoupled from
// the request that started it.
func (l *Listener) Listen(reference string, onReceipt func(event nostr.Event)) {
	ctx, cancel := context.WithTimeout(context.Background(), l.Window)

	var once sync.Once
	var wg sync.WaitGroup

	filters := nostr.Filters{
		nostr.Filter{
			Kinds: []int{KindZapReceipt},
			Tags:  nostr.TagMap{"e": []string{reference}},
		},
	}

	for _, url := range l.Relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			relay, err := nostr.RelayConnect(ctx, url)
			if err != nil {
				l.Logger.Warn("ZAP", fmt.Sprintf("relay %s unreachable: %v", url, err))
				return
			}
			defer relay.Close()

			sub, err := relay.Subscribe(ctx, filters)
			if err != nil {
				l.Logger.Warn("ZAP", fmt.Sprintf("subscribe to %s failed: %v", url, err))
				return
			}
			defer sub.Close()

			for {
				select {
				case ev := <-sub.Events:
					if ev == nil {
						return
					}
					once.Do(func() {
						l.Logger.LogPayment("ZAP", reference, fmt.Sprintf("receipt %s observed on %s", ev.ID, url))
						onReceipt(*ev)
						cancel()
					})
					return
				case <-ctx.Done():
					return
				}
			}
		}(url)
	}

	go func() {
		wg.Wait()
		cancel()
	}()
}
