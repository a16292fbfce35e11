package desmo

import "sync"

// lifecycleAdapter translates host-lifecycle transitions into the
// coordinator's two hooks (spec §4.10). Binding is idempotent; rebinding
// replaces the prior binding rather than stacking callbacks.
type lifecycleAdapter struct {
	mu          sync.Mutex
	onForeground func()
	onBackground func()
}

// Bind registers the callbacks a lifecycle source should invoke. Any
// previous binding is replaced, not stacked.
func (l *lifecycleAdapter) Bind(onForeground, onBackground func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onForeground = onForeground
	l.onBackground = onBackground
}

// Foreground invokes the currently bound foreground hook, if any.
func (l *lifecycleAdapter) Foreground() {
	l.mu.Lock()
	fn := l.onForeground
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Background invokes the currently bound background hook, if any.
func (l *lifecycleAdapter) Background() {
	l.mu.Lock()
	fn := l.onBackground
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}
