package paintmgr

import "fmt"

// assert reports an invariant violation. It panics in debug builds and
// logs otherwise; callers carry on with release behavior after it.
func (m *Manager) assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if m.cfg.Debug {
		panic("paintmgr: invariant violated: " + msg)
	}
	m.logger.Error("invariant violated", "detail", msg)
}
