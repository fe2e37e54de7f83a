package pool

import (
	"context"
	"time"

	"github.com/sydlexius/refrain/internal/logging"
)

// StartKeepalive runs a trivial query every KeepaliveInterval while the pool
// exists. Failures are logged and never stop the loop. Calling it again while
// running is a no-op.
func (p *Pool) StartKeepalive(ctx context.Context) {
	p.keepMu.Lock()
	defer p.keepMu.Unlock()
	if p.keepCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.keepCancel = cancel
	p.keepDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.KeepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.keepalive(ctx)
			}
		}
	}()
}

// StopKeepalive stops the keepalive loop and waits for it to exit.
func (p *Pool) StopKeepalive() {
	p.keepMu.Lock()
	cancel, done := p.keepCancel, p.keepDone
	p.keepCancel, p.keepDone = nil, nil
	p.keepMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Pool) keepalive(ctx context.Context) {
	db := p.handle()
	if db == nil {
		return
	}
	timeout := p.cfg.KeepaliveInterval
	if p.cfg.ConnectTimeout > 0 && p.cfg.ConnectTimeout < timeout {
		timeout = p.cfg.ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, "SELECT 1"); err != nil {
		p.logger.Warn("keepalive ping failed", logging.Err(err))
		return
	}
	p.logger.Debug("keepalive ok")
}
