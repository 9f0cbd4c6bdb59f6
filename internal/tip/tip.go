// Package tip implements the Tip Poller (C7): a periodic background task
// that fetches the chain tip through the ordinary coordinator path and
// invalidates the result cache on height change. The ticker-driven
// loop-until-cancelled shape follows the same pattern as a periodic
// reporting loop gated on a context.
package tip

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/carlosrabelo/atomicalsproxy/internal/coordinator"
	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
	"github.com/carlosrabelo/atomicalsproxy/pkg/logger"
)

// PollInterval is the fixed interval between tip checks (§5).
const PollInterval = 10 * time.Second

// Poller periodically calls blockchain.atomicals.get_global and clears the
// result cache whenever the reported height differs from the last one seen.
type Poller struct {
	coord      *coordinator.Coordinator
	lastHeight atomic.Uint64
}

// New returns a Poller bound to coord. The last observed height starts at 0.
func New(coord *coordinator.Coordinator) *Poller {
	return &Poller{coord: coord}
}

// Run polls every PollInterval until ctx is cancelled. It runs regardless of
// HTTP traffic.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	env := p.coord.Call(ctx, rpctypes.TipMethod, []interface{}{}, "tip-poller", p.coord.ResponseTimeout())
	if !env.Success || len(env.Response) == 0 {
		return
	}

	var tip rpctypes.GlobalTip
	if err := json.Unmarshal(env.Response, &tip); err != nil {
		logger.Error("tip: failed to parse global result: %v", err)
		return
	}

	prev := p.lastHeight.Load()
	if tip.Global.Height == prev {
		return
	}
	p.lastHeight.Store(tip.Global.Height)
	logger.Info("tip: height changed %d -> %d, invalidating cache", prev, tip.Global.Height)
	p.coord.InvalidateCache()
}
