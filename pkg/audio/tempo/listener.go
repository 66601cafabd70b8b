package tempo

import "sync"

// Listener is notified when a beat fires. frequencyHz is the dominant
// frequency of the beat frame and is never 0.
//
// Listeners are registered and removed by identity, so implementations must
// be comparable (typically a pointer).
type Listener interface {
	OnBeatDetected(frequencyHz int)
}

type listenerRegistry struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (r *listenerRegistry) add(l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// remove drops the first registration of l and reports whether one existed
func (r *listenerRegistry) remove(l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (r *listenerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// notify calls every listener in registration order. It works on a snapshot
// so listeners may add or remove registrations from inside the callback.
func (r *listenerRegistry) notify(frequencyHz int) {
	r.mu.RLock()
	snapshot := make([]Listener, len(r.listeners))
	copy(snapshot, r.listeners)
	r.mu.RUnlock()

	for _, l := range snapshot {
		l.OnBeatDetected(frequencyHz)
	}
}
