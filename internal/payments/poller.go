// Package payments drives the LUD-21 verify loop that confirms
// invoice settlement when no zap receipt shows up on the relays.
package payments

import (
	"context"
	"time"

	"ln-ticketing/internal/logger"
)

// Settler attempts one settlement check for an order. It reports
// whether the order is settled; a false with nil error means the
// invoice is simply unpaid so far.
type Settler interface {
	VerifyAndSettle(ctx context.Context, eventReferenceID, code string) (bool, error)
}

type Poller struct {
	Settler  Settler
	Interval time.Duration
	Logger   *logger.Logger
}

func NewPoller(settler Settler, interval time.Duration, log *logger.Logger) *Poller {
	return &Poller{
		Settler:  settler,
		Interval: interval,
		Logger:   log,
	}
}

// Start polls until the order settles or ctx is cancelled. Transient
// errors are logged and retried on the next tick.
func (p *Poller) Start(ctx context.Context, eventReferenceID, code string) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			settled, err := p.Settler.VerifyAndSettle(ctx, eventReferenceID, code)
			if err != nil {
				if p.Logger != nil {
					p.Logger.LogPayment("lud21", eventReferenceID, "verify attempt failed: "+err.Error())
				}
				continue
			}
			if settled {
				if p.Logger != nil {
					p.Logger.LogPayment("lud21", eventReferenceID, "invoice settled, poller stopping")
				}
				return
			}
		}
	}
}
