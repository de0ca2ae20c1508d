package notify

import "sync"

// Recorder keeps the most recent notices and forwards each one to Next.
type Recorder struct {
	next  Sink
	limit int

	mu      sync.Mutex
	notices []Notice
}

// NewRecorder creates a Recorder holding up to limit notices (default: 20).
// next may be nil.
func NewRecorder(limit int, next Sink) *Recorder {
	if limit <= 0 {
		limit = 20
	}
	if next == nil {
		next = Discard
	}
	return &Recorder{next: next, limit: limit}
}

// Notify implements Sink.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	if len(r.notices) > r.limit {
		r.notices = append(r.notices[:0:0], r.notices[len(r.notices)-r.limit:]...)
	}
	r.mu.Unlock()

	r.next.Notify(n)
}

// Recent returns the kept notices, oldest first.
func (r *Recorder) Recent() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the newest notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

var _ Sink = (*Recorder)(nil)
