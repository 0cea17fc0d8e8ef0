package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher is an explicitly owned background task that pushes the registry
// to a Pushgateway-style sink on a fixed interval and once more at
// shutdown. An unreachable sink is logged and tolerated; the main request
// path is never blocked.
type Pusher struct {
	pusher   *push.Pusher
	interval time.Duration
	logger   *slog.Logger
	done     chan struct{}
}

// NewPusher returns nil when gatewayURL is empty, which disables pushing
// entirely; callers treat a nil Pusher as a no-op.
func NewPusher(gatewayURL, job string, interval time.Duration, m *Metrics, logger *slog.Logger) *Pusher {
	if gatewayURL == "" || m == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{
		pusher:   push.New(gatewayURL, job).Gatherer(m.Registry()),
		interval: interval,
		logger:   logger.With("component", "metrics-push"),
		done:     make(chan struct{}),
	}
}

// Start launches the push loop. It returns immediately; the loop exits
// when ctx is cancelled, after a final flush.
func (p *Pusher) Start(ctx context.Context) {
	if p == nil {
		return
	}
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case <-ticker.C:
				p.flush()
			}
		}
	}()
}

// Wait blocks until the loop has flushed and exited.
func (p *Pusher) Wait() {
	if p == nil {
		return
	}
	<-p.done
}

func (p *Pusher) flush() {
	if err := p.pusher.Push(); err != nil {
		p.logger.Error("push failed", "err", err)
		return
	}
	p.logger.Debug("metrics pushed")
}
