package supervisor

import (
	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/registry"
)

// maxLaunchPerTick caps the number of workers launched on a single tick.
const maxLaunchPerTick = 5

// action is the outcome of a scheduling decision.
type action struct {
	// Launch is the number of workers to launch.
	Launch int
	// Retire asks one idle worker to exit.
	Retire bool
}

// policy computes scheduling decisions. The spare-too-high counter makes
// retirement rate limited: at most one worker is retired per threshold ticks.
type policy struct {
	threshold int
	spareHigh int
}

func (p *policy) decide(cfg *config.Config, c registry.Counters, limit int) action {
	if cfg.MaxClients < limit {
		limit = cfg.MaxClients
	}
	idle := c.Idle()

	switch {
	case c.Running < cfg.StartServers:
		p.spareHigh = 0
		return action{Launch: capLaunch(cfg.StartServers-c.Running, limit-c.Running)}
	case idle < cfg.MinSpareServers && c.Running < limit:
		p.spareHigh = 0
		return action{Launch: capLaunch(cfg.MinSpareServers-idle, limit-c.Running)}
	case idle > cfg.MaxSpareServers && c.Running > cfg.StartServers:
		p.spareHigh++
		if p.spareHigh < p.threshold {
			return action{}
		}
		p.spareHigh = 0
		return action{Retire: true}
	}
	p.spareHigh = 0
	return action{}
}

func capLaunch(n, room int) int {
	if n > room {
		n = room
	}
	if n > maxLaunchPerTick {
		n = maxLaunchPerTick
	}
	if n < 0 {
		n = 0
	}
	return n
}
