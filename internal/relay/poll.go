package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Poll runs a pass right away and then every interval until ctx is done.
// A tick that fires while the previous pass is still running is skipped, so
// passes in one process never overlap.
func (r *Relay) Poll(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("relay: poll interval must be positive, got %s", every)
	}

	var lock sync.Mutex
	pass := func() {
		if !lock.TryLock() {
			r.log().Warn("relay: previous pass still running, skipping tick")
			return
		}
		defer lock.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log().Error("relay: pass failed", zap.Error(err))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", every), pass); err != nil {
		return fmt.Errorf("relay: schedule: %w", err)
	}

	r.log().Info("relay: polling", zap.Duration("every", every))
	c.Start()
	go pass()

	<-ctx.Done()
	<-c.Stop().Done()

	// wait for a pass started outside the scheduler
	lock.Lock()
	defer lock.Unlock()

	return nil
}
