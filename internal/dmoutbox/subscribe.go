package dmoutbox

import (
	"context"

	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

// UpdateCallback is invoked whenever the subscribed bucket changes. It
// carries no payload: callers re-run SyncDay/SyncRecent to fetch the
// updated, reassembled contents (spec.md §4.6 "Subscribe").
type UpdateCallback func()

// Subscription tracks a long-lived listener on one contact's current-day
// bucket, rotating to the new day's key as days roll over.
type Subscription struct {
	outbox      *Outbox
	myFP        string
	contactFP   string
	cb          UpdateCallback
	trackedDay  int64
	cancelCurrent dht.ListenCancelFunc
}

// Subscribe registers a listener on the chunk-0 key of today's bucket for
// contactFP → myFP (spec.md §4.6).
func (o *Outbox) Subscribe(ctx context.Context, myFP, contactFP string, cb UpdateCallback) (*Subscription, error) {
	s := &Subscription{outbox: o, myFP: myFP, contactFP: contactFP, cb: cb}
	day := dayOf(o.now())
	cancel, err := o.listenDay(ctx, contactFP, myFP, day, cb)
	if err != nil {
		return nil, err
	}
	s.cancelCurrent = cancel
	s.trackedDay = day
	return s, nil
}

// listenDay registers a transport listener on day's chunk-0 key. The
// listener only signals "re-sync"; payload reassembly always goes
// through SyncDay so multi-chunk buckets are handled uniformly, and
// expiry notifications are ignored since an expired bucket means there
// is nothing new to fetch.
func (o *Outbox) listenDay(ctx context.Context, contactFP, myFP string, day int64, cb UpdateCallback) (dht.ListenCancelFunc, error) {
	baseKey := keyderive.DMBucket(contactFP, myFP, day)
	chunk0Key := keyderive.DeriveKey(keyderive.ChunkSlot(baseKey, 0))
	return o.transport.Listen(ctx, chunk0Key, func(value []byte, expired bool) {
		if !expired && cb != nil {
			cb()
		}
	})
}

// CheckDayRotation re-registers the listener if the wall-clock day has
// advanced since the last check, returning true when a rotation happened
// so the caller can SyncDay yesterday to catch messages queued just
// before midnight (spec.md §4.6 "Subscribe / Rotate").
func (s *Subscription) CheckDayRotation(ctx context.Context) (bool, error) {
	today := dayOf(s.outbox.now())
	if today == s.trackedDay {
		return false, nil
	}
	newCancel, err := s.outbox.listenDay(ctx, s.contactFP, s.myFP, today, s.cb)
	if err != nil {
		return false, err
	}
	if s.cancelCurrent != nil {
		s.cancelCurrent()
	}
	s.cancelCurrent = newCancel
	s.trackedDay = today
	if s.cb != nil {
		s.cb()
	}
	return true, nil
}

// Cancel tears down the active listener.
func (s *Subscription) Cancel() {
	if s.cancelCurrent != nil {
		s.cancelCurrent()
		s.cancelCurrent = nil
	}
}
