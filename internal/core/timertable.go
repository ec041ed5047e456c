package core

import (
	"sync"
	"time"
)

// timerBuckets is the fixed bucket count for the Timer Table's open
// hash.
const timerBuckets = 64

// TimerRecord is the per-timer bookkeeping entry for one registered
// timer. The retained JS callback itself lives on the JS side (every engine
// backend's RegisterFunc only marshals primitive Go types, so Go cannot
// hold a bare JS function value — see JSRuntime.RegisterFunc in
// interfaces.go for the contract this follows);
// Go owns the scheduling metadata and is the sole authority that removes
// the JS-side entry, which is what "owned reference" means operationally
// here: exactly one remover, never two.
type TimerRecord struct {
	ID       uint32
	Owner    *ContextHandle // back-pointer, non-owning
	Interval bool
	Delay    time.Duration

	// Fire invokes the retained JS callback. Supplied by the owning
	// engine backend at registration time, since only it knows which
	// engine-runtime/context to evaluate the callback against.
	Fire func()

	mu       sync.Mutex
	deadline time.Time
	cleared  bool
}

// TimerTable is the thread-safe keyed lookup of live timers for one
// Worker Runtime. Its mutex is independent of any context-list mutex to
// avoid lock inversion between the two.
type TimerTable struct {
	mu      sync.Mutex
	buckets [timerBuckets][]*TimerRecord
	nextID  uint32
}

// NewTimerTable constructs an empty Timer Table.
func NewTimerTable() *TimerTable {
	return &TimerTable{}
}

func bucketFor(id uint32) int {
	return int(id % timerBuckets)
}

// allocID returns the next 32-bit timer id, wrapping to 1 on overflow
// (0 is never issued so callers can treat 0 as "no timer").
func (t *TimerTable) allocID() uint32 {
	t.nextID++
	if t.nextID == 0 {
		t.nextID = 1
	}
	return t.nextID
}

// Insert allocates an id for rec, assigns it, and inserts rec into its
// bucket. Returns the assigned id.
func (t *TimerTable) Insert(rec *TimerRecord, delay time.Duration) uint32 {
	t.mu.Lock()
	id := t.allocID()
	rec.ID = id
	rec.deadline = time.Now().Add(delay)
	b := bucketFor(id)
	t.buckets[b] = append(t.buckets[b], rec)
	t.mu.Unlock()
	return id
}

// Find looks up a timer by id. Idempotent: looking up a removed id
// returns ok=false.
func (t *TimerTable) Find(id uint32) (*TimerRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.buckets[bucketFor(id)] {
		if rec.ID == id {
			return rec, true
		}
	}
	return nil, false
}

// Remove deletes a timer by id. Idempotent — removing an absent id is a
// no-op.
func (t *TimerTable) Remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := bucketFor(id)
	bucket := t.buckets[b]
	for i, rec := range bucket {
		if rec.ID == id {
			t.buckets[b] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// RemoveAllForOwner walks every bucket and removes (and returns) every
// timer owned by owner. Used by context teardown so destruction is
// always eventually possible.
func (t *TimerTable) RemoveAllForOwner(owner *ContextHandle) []*TimerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []*TimerRecord
	for b := range t.buckets {
		kept := t.buckets[b][:0]
		for _, rec := range t.buckets[b] {
			if rec.Owner == owner {
				removed = append(removed, rec)
			} else {
				kept = append(kept, rec)
			}
		}
		t.buckets[b] = kept
	}
	return removed
}

// NextDeadline scans all live, uncleared timers and returns the earliest
// deadline along with the timer itself. ok is false if no timer is live.
func (t *TimerTable) NextDeadline() (rec *TimerRecord, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, bucket := range t.buckets {
		for _, r := range bucket {
			r.mu.Lock()
			cleared := r.cleared
			deadline := r.deadline
			r.mu.Unlock()
			if cleared {
				continue
			}
			if !ok || deadline.Before(rec.deadline) {
				rec, ok = r, true
			}
		}
	}
	return rec, ok
}

// dueSnapshot collects every record that is cleared or at/past its
// deadline as of now, without mutating anything. Taking the snapshot
// under one lock and then processing it outside the lock keeps a
// zero-delay repeating timer from re-arming to "now" and being picked
// up again in the same poll.
func (t *TimerTable) dueSnapshot(now time.Time) []*TimerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []*TimerRecord
	for _, bucket := range t.buckets {
		for _, r := range bucket {
			r.mu.Lock()
			ready := r.cleared || !r.deadline.After(now)
			r.mu.Unlock()
			if ready {
				due = append(due, r)
			}
		}
	}
	return due
}

// FireDue runs one non-blocking poll of the table: every timer due as
// of now fires exactly once,
// interval timers are rearmed, one-shot timers are removed and their
// owning context's active-timer count decremented. onFreeable is
// called for any owner that becomes eligible for destruction as a
// result. Returns true if any timer was processed.
func (t *TimerTable) FireDue(onFreeable func(*ContextHandle)) bool {
	due := t.dueSnapshot(time.Now())
	for _, rec := range due {
		if rec.Cleared() {
			t.Remove(rec.ID)
			continue
		}
		rec.Fire()
		if rec.Interval {
			rec.Rearm()
			continue
		}
		t.Remove(rec.ID)
		if rec.Owner != nil {
			if rec.Owner.DecTimers() {
				onFreeable(rec.Owner)
			}
		}
	}
	return len(due) > 0
}

// Len reports the total number of live timers across all buckets.
func (t *TimerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}

// MarkCleared flags a record as cancelled without removing it from the
// table; the firing loop skips cleared records and the owning backend
// removes them via Remove once the underlying engine timer is closed.
func (r *TimerRecord) MarkCleared() {
	r.mu.Lock()
	r.cleared = true
	r.mu.Unlock()
}

// Cleared reports whether MarkCleared was called.
func (r *TimerRecord) Cleared() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared
}

// Rearm resets an interval timer's deadline after it fires.
func (r *TimerRecord) Rearm() {
	r.mu.Lock()
	r.deadline = time.Now().Add(r.Delay)
	r.mu.Unlock()
}

// Deadline returns the record's current fire time.
func (r *TimerRecord) Deadline() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deadline
}
