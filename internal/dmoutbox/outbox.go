package dmoutbox

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

const (
	cacheSlots          = 64
	cacheTTL            = 60 * time.Second
	maxBucketEntries    = 500
	defaultTTLSeconds   = 7 * 24 * 60 * 60
	daySeconds          = 24 * 60 * 60
)

type cacheItem struct {
	baseKey   string
	messages  []Message
	needsSync bool
	cachedAt  time.Time
}

// Outbox is the per-node DM outbox: C3-backed day buckets plus the
// bounded write-through cache described in spec.md §4.6.
type Outbox struct {
	store     *chunkstore.Store
	transport dht.Transport
	now       func() time.Time

	mu    sync.Mutex
	lru   *list.List // front = most recently used
	index map[string]*list.Element
}

func NewOutbox(store *chunkstore.Store, transport dht.Transport) *Outbox {
	return &Outbox{
		store:     store,
		transport: transport,
		now:       time.Now,
		lru:       list.New(),
		index:     make(map[string]*list.Element),
	}
}

func dayOf(t time.Time) int64 {
	return t.Unix() / daySeconds
}

// touchLocked moves or inserts baseKey at the front of the LRU, evicting
// the least-recently-used slot if the cache is at capacity. Callers must
// hold o.mu.
func (o *Outbox) touchLocked(it *cacheItem) {
	if el, ok := o.index[it.baseKey]; ok {
		el.Value = it
		o.lru.MoveToFront(el)
		return
	}
	el := o.lru.PushFront(it)
	o.index[it.baseKey] = el
	if o.lru.Len() > cacheSlots {
		back := o.lru.Back()
		if back != nil {
			evicted := back.Value.(*cacheItem)
			delete(o.index, evicted.baseKey)
			o.lru.Remove(back)
		}
	}
}

// containsSeqNum reports whether messages already holds seqNum.
func containsSeqNum(messages []Message, seqNum uint64) bool {
	for _, m := range messages {
		if m.SeqNum == seqNum {
			return true
		}
	}
	return false
}

// snapshotLocked returns a copy of the cached messages for baseKey and
// whether the slot is present and within cacheTTL. Callers must hold
// o.mu. The returned slice must not be mutated in place by the caller
// (append to a fresh slice instead) since it may still be aliased by
// the cache entry.
func (o *Outbox) snapshotLocked(baseKey string) (messages []Message, fresh bool) {
	el, ok := o.index[baseKey]
	if !ok {
		return nil, false
	}
	it := el.Value.(*cacheItem)
	o.lru.MoveToFront(el)
	return it.messages, o.now().Sub(it.cachedAt) < cacheTTL
}

// Queue appends a message to the (sender, recipient) day bucket for the
// current day (spec.md §4.6 "Queue"). Per spec.md §9, o.mu is never held
// across a DHT call: the cache is read, released, the DHT is contacted,
// then the cache is re-locked to write back the result (the same
// sequence CacheSyncPending uses).
func (o *Outbox) Queue(ctx context.Context, sender, recipient string, ciphertext []byte, seqNum uint64, ttlSeconds uint32) error {
	if ttlSeconds == 0 {
		ttlSeconds = defaultTTLSeconds
	}
	day := dayOf(o.now())
	baseKey := keyderive.DMBucket(sender, recipient, day)

	o.mu.Lock()
	messages, fresh := o.snapshotLocked(baseKey)
	o.mu.Unlock()

	if !fresh {
		raw, err := o.store.Fetch(ctx, baseKey)
		if err != nil {
			if !chunkstore.IsNotFound(err) {
				return err
			}
			messages = nil
		} else {
			messages, err = decodeBucket(raw)
			if err != nil {
				return err
			}
		}
	}

	o.mu.Lock()
	// A concurrent Queue on the same bucket may have refreshed or
	// appended to the cache while this call fetched/decoded unlocked;
	// prefer whatever is in the cache now over our possibly-stale view.
	if current, ok := o.index[baseKey]; ok {
		messages = current.Value.(*cacheItem).messages
	}
	if containsSeqNum(messages, seqNum) {
		o.mu.Unlock()
		return nil // idempotent: already queued
	}

	if len(messages) >= maxBucketEntries {
		messages = messages[1:]
	}
	now := uint64(o.now().Unix())
	messages = append(messages[:len(messages):len(messages)], Message{
		SeqNum:     seqNum,
		Timestamp:  now,
		Expiry:     now + uint64(ttlSeconds),
		Sender:     sender,
		Recipient:  recipient,
		Ciphertext: ciphertext,
	})
	o.touchLocked(&cacheItem{baseKey: baseKey, messages: messages, cachedAt: o.now()})
	o.mu.Unlock()

	encoded := encodeBucket(messages)
	pubErr := o.store.Publish(ctx, baseKey, encoded, ttlSeconds)

	o.mu.Lock()
	if el, ok := o.index[baseKey]; ok {
		it := el.Value.(*cacheItem)
		it.needsSync = pubErr != nil
		it.cachedAt = o.now()
	}
	o.mu.Unlock()

	return pubErr
}

// SyncDay fetches and filters the bucket for contactFP → myFP on day
// (spec.md §4.6 "SyncDay").
func (o *Outbox) SyncDay(ctx context.Context, myFP, contactFP string, day int64) ([]Message, error) {
	baseKey := keyderive.DMBucket(contactFP, myFP, day)
	raw, err := o.store.Fetch(ctx, baseKey)
	if err != nil {
		if chunkstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	messages, err := decodeBucket(raw)
	if err != nil {
		return nil, err
	}
	now := uint64(o.now().Unix())
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Expiry >= now {
			out = append(out, m)
		}
	}
	return out, nil
}

// SyncRecent covers {today-1, today, today+1} (spec.md §4.6).
func (o *Outbox) SyncRecent(ctx context.Context, myFP, contactFP string) ([]Message, error) {
	today := dayOf(o.now())
	return o.syncDayRange(ctx, myFP, contactFP, today-1, today+1)
}

// SyncFull covers {today-6 .. today+1} (spec.md §4.6).
func (o *Outbox) SyncFull(ctx context.Context, myFP, contactFP string) ([]Message, error) {
	today := dayOf(o.now())
	return o.syncDayRange(ctx, myFP, contactFP, today-6, today+1)
}

func (o *Outbox) syncDayRange(ctx context.Context, myFP, contactFP string, from, to int64) ([]Message, error) {
	var out []Message
	for day := from; day <= to; day++ {
		msgs, err := o.SyncDay(ctx, myFP, contactFP, day)
		if err != nil {
			return nil, fmt.Errorf("dmoutbox: sync day %d: %w", day, err)
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// SyncMode selects the day range SyncAllContacts fetches per contact.
type SyncMode int

const (
	SyncModeRecent SyncMode = iota
	SyncModeFull
)

// SyncAllContacts fans out a per-contact sync across goroutines and joins
// the results (spec.md §4.6 "SyncAllContacts"). A single contact's
// failure does not abort the others; its error is returned alongside any
// results gathered from the rest.
func (o *Outbox) SyncAllContacts(ctx context.Context, myFP string, contacts []string, mode SyncMode) (map[string][]Message, map[string]error) {
	type result struct {
		contact  string
		messages []Message
		err      error
	}
	results := make(chan result, len(contacts))
	var wg sync.WaitGroup
	for _, contact := range contacts {
		contact := contact
		wg.Add(1)
		go func() {
			defer wg.Done()
			var msgs []Message
			var err error
			if mode == SyncModeFull {
				msgs, err = o.SyncFull(ctx, myFP, contact)
			} else {
				msgs, err = o.SyncRecent(ctx, myFP, contact)
			}
			results <- result{contact: contact, messages: msgs, err: err}
		}()
	}
	wg.Wait()
	close(results)

	out := make(map[string][]Message, len(contacts))
	errs := make(map[string]error)
	for r := range results {
		if r.err != nil {
			errs[r.contact] = r.err
			continue
		}
		out[r.contact] = r.messages
	}
	return out, errs
}

// CacheSyncPending retries every cache slot marked needs_dht_sync
// (spec.md §4.6 "CacheSyncPending", invariant 9).
func (o *Outbox) CacheSyncPending(ctx context.Context) error {
	o.mu.Lock()
	pending := make([]*cacheItem, 0)
	for el := o.lru.Front(); el != nil; el = el.Next() {
		it := el.Value.(*cacheItem)
		if it.needsSync {
			pending = append(pending, it)
		}
	}
	o.mu.Unlock()

	var firstErr error
	for _, it := range pending {
		encoded := encodeBucket(it.messages)
		err := o.store.Publish(ctx, it.baseKey, encoded, defaultTTLSeconds)

		o.mu.Lock()
		if err == nil {
			it.needsSync = false
		} else if firstErr == nil {
			firstErr = err
		}
		o.mu.Unlock()
	}
	return firstErr
}
