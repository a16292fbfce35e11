package desmo

import (
	"sync"
	"sync/atomic"
	"time"
)

// BatteryProvider and ScreenProvider abstract the cheap/expensive host
// broadcasts the context snapshotter reads (spec §4.4); out of scope for
// this module, supplied by the host integration.
type BatteryProvider interface {
	BatteryLevel() (level float64, charging bool)
}

type ScreenProvider interface {
	ScreenOn() bool
}

type NetworkProvider interface {
	NetworkType() NetworkType
}

// contextSnapshotter produces a fresh Context record on demand. Cheap
// fields (screen, network) are sampled live every call; battery is cached
// and refreshed at most every 30 seconds since the underlying broadcast is
// costly and battery moves slowly (spec §4.4).
type contextSnapshotter struct {
	battery BatteryProvider
	screen  ScreenProvider
	network NetworkProvider
	clk     interface{ Now() time.Time }

	activity ActivityAdapter

	mu              sync.Mutex
	lastBatteryRead time.Time
	cachedLevel     float64
	cachedCharging  bool

	foreground atomic.Bool // lifecycle adapter's last-known state; defaults true
}

const batteryCacheTTL = 30 * time.Second

func newContextSnapshotter(battery BatteryProvider, screen ScreenProvider, network NetworkProvider, clk interface{ Now() time.Time }) *contextSnapshotter {
	cs := &contextSnapshotter{battery: battery, screen: screen, network: network, clk: clk}
	cs.foreground.Store(true)
	return cs
}

// Snapshot returns the current Context. Battery is served from cache within
// its TTL window and re-read from the provider at most once per window.
func (cs *contextSnapshotter) Snapshot() Context {
	var ctxv Context

	if cs.screen != nil {
		on := cs.screen.ScreenOn()
		ctxv.ScreenOn = &on
	}
	if cs.network != nil {
		ctxv.Network = cs.network.NetworkType()
	} else {
		ctxv.Network = NetworkUnknown
	}

	if cs.battery != nil {
		level, charging := cs.batterySnapshot()
		ctxv.BatteryLevel = &level
		ctxv.Charging = &charging
	}

	if cs.activity != nil && cs.activity.IsAvailable() {
		ctxv.MotionActivity = cs.activity.LatestActivity()
	}

	fg := cs.foreground.Load()
	ctxv.AppForeground = &fg
	return ctxv
}

func (cs *contextSnapshotter) batterySnapshot() (float64, bool) {
	now := cs.clk.Now()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if now.Sub(cs.lastBatteryRead) < batteryCacheTTL && !cs.lastBatteryRead.IsZero() {
		return cs.cachedLevel, cs.cachedCharging
	}
	level, charging := cs.battery.BatteryLevel()
	cs.cachedLevel = level
	cs.cachedCharging = charging
	cs.lastBatteryRead = now
	return level, charging
}

// setForeground is called by the coordinator's foreground/background hooks.
func (cs *contextSnapshotter) setForeground(fg bool) {
	cs.foreground.Store(fg)
}
