package lbt

import (
	"time"

	"github.com/banshee-data/spectrum.report/internal/monitoring"
)

// fbeTxGuard is the settling pause after yielding the receive path at
// the start of a transmit window.
const fbeTxGuard = 500 * time.Microsecond

// fbeDecide is the frame-based verdict: a pure function of elapsed
// time, no sensing. Inside the transmit window the receive path is
// yielded (with a short guard); outside it reception resumes.
func (e *Engine) fbeDecide(cfg *AccessConfig) bool {
	now := e.clock.Now()
	st := e.fbe.Load()
	txOK := st.txAllowed(now)

	if txOK {
		e.rx.StopRX()
		e.clock.Sleep(fbeTxGuard)
	} else {
		e.rx.RestartRX()
	}
	if cfg.LogLBT && st != nil && st.tFrame > 0 {
		monitoring.Logf("lbt: fbe offset %.2fms tx=%v",
			float64(st.frameOffset(now).Microseconds())/1000.0, txOK)
	}
	return txOK
}

// Heartbeat may be invoked at any cadence in FBE mode to keep the
// receive path aligned with the frame gate: suspended during the
// transmit window, running otherwise. It needs no new information and
// is a no-op in other modes.
func (e *Engine) Heartbeat() {
	cfg := e.cfg.Load()
	if cfg == nil || !cfg.Enabled || cfg.Mode != ModeFBE {
		return
	}
	if e.fbe.Load().txAllowed(e.clock.Now()) {
		e.rx.StopRX()
	} else {
		e.rx.RestartRX()
	}
}
