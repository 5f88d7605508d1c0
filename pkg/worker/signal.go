package worker

// WakeSignal is the synchronization handle a worker thread registers with
// the wake-up bridge. Set is safe to call from any goroutine and never
// blocks; a signal raised while the owner is not waiting is remembered
// until the next wait.
type WakeSignal struct {
	ch chan struct{}
}

func NewWakeSignal() *WakeSignal {
	return &WakeSignal{ch: make(chan struct{}, 1)}
}

// Set raises the signal. Coalesces with an already-pending signal.
func (s *WakeSignal) Set() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the owning thread selects on while sleeping.
func (s *WakeSignal) C() <-chan struct{} {
	return s.ch
}
