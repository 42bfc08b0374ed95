package dht

import (
	"context"
	"encoding/hex"
	"sync"
	"time"
)

// InMemory is a minimal, non-persistent Transport intended for unit and
// conformance tests. It is NOT a real Kademlia DHT: it provides
// deterministic, in-process storage so the storage plane above it can be
// exercised without a network, the same role the teacher's
// InMemoryChainState plays for consensus tests (consensus/connect_block_inmem.go).
type InMemory struct {
	mu       sync.Mutex
	slots    map[[32]byte]map[uint64]slotValue
	byHex    map[string][32]byte
	listens  map[[32]byte][]*listener
	ownerID  uint64
	now      func() time.Time
	nextTok  int
	ready    bool
}

type slotValue struct {
	bytes     []byte
	expiresAt time.Time
	permanent bool
}

type listener struct {
	token int
	cb    ListenCallback
}

// NewInMemory returns a ready Transport fake. now defaults to time.Now.
func NewInMemory() *InMemory {
	return &InMemory{
		slots:   make(map[[32]byte]map[uint64]slotValue),
		byHex:   make(map[string][32]byte),
		listens: make(map[[32]byte][]*listener),
		now:     time.Now,
		ready:   true,
	}
}

// SetClock overrides the time source, for deterministic TTL tests.
func (m *InMemory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetReady controls IsReady's return value, for bootstrap-wait tests.
func (m *InMemory) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

// SetOwnerValueID fixes the value returned by OwnerValueID.
func (m *InMemory) SetOwnerValueID(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownerID = id
}

func (m *InMemory) PutSigned(_ context.Context, key [32]byte, valueBytes []byte, valueID uint64, ttlSeconds uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.slots[key]
	if !ok {
		bucket = make(map[uint64]slotValue)
		m.slots[key] = bucket
	}
	sv := slotValue{bytes: append([]byte(nil), valueBytes...)}
	if ttlSeconds == MaxTTL {
		sv.permanent = true
	} else {
		sv.expiresAt = m.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	bucket[valueID] = sv
	m.byHex[hex.EncodeToString(key[:])] = key
	m.fireListenersLocked(key)
	return nil
}

func (m *InMemory) liveValuesLocked(key [32]byte) [][]byte {
	bucket := m.slots[key]
	if bucket == nil {
		return nil
	}
	now := m.now()
	out := make([][]byte, 0, len(bucket))
	for id, sv := range bucket {
		if !sv.permanent && now.After(sv.expiresAt) {
			delete(bucket, id)
			continue
		}
		out = append(out, sv.bytes)
	}
	return out
}

func (m *InMemory) Get(_ context.Context, key [32]byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.liveValuesLocked(key)
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return vals[0], nil
}

func (m *InMemory) GetAll(_ context.Context, key [32]byte) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveValuesLocked(key), nil
}

func (m *InMemory) GetAsync(ctx context.Context, key [32]byte, cb GetAsyncCallback) {
	go func() {
		v, err := m.Get(ctx, key)
		if err == ErrNotFound {
			cb(nil, false)
			return
		}
		cb(v, true)
	}()
}

func (m *InMemory) GetBatchSync(ctx context.Context, keys [][32]byte) ([]GetResult, error) {
	out := make([]GetResult, len(keys))
	for i, k := range keys {
		v, err := m.Get(ctx, k)
		if err == ErrNotFound {
			out[i] = GetResult{Found: false}
			continue
		}
		out[i] = GetResult{Found: true, Bytes: v}
	}
	return out, nil
}

func (m *InMemory) Listen(_ context.Context, key [32]byte, cb ListenCallback) (ListenCancelFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTok++
	tok := m.nextTok
	l := &listener{token: tok, cb: cb}
	m.listens[key] = append(m.listens[key], l)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		ls := m.listens[key]
		for i, cand := range ls {
			if cand.token == tok {
				m.listens[key] = append(ls[:i], ls[i+1:]...)
				break
			}
		}
	}, nil
}

// fireListenersLocked notifies listeners on key with the first live value.
// Callers must hold m.mu.
func (m *InMemory) fireListenersLocked(key [32]byte) {
	vals := m.liveValuesLocked(key)
	var v []byte
	if len(vals) > 0 {
		v = vals[0]
	}
	for _, l := range m.listens[key] {
		cb := l.cb
		go cb(v, v == nil)
	}
}

func (m *InMemory) OwnerValueID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownerID
}

func (m *InMemory) RepublishPacked(_ context.Context, keyHex string, serializedValue []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byHex[keyHex]
	if !ok {
		var decoded [32]byte
		b, err := hex.DecodeString(keyHex)
		if err != nil || len(b) != 32 {
			return ErrNotFound
		}
		copy(decoded[:], b)
		key = decoded
		m.byHex[keyHex] = key
	}
	bucket, ok := m.slots[key]
	if !ok {
		bucket = make(map[uint64]slotValue)
		m.slots[key] = bucket
	}
	bucket[0] = slotValue{bytes: append([]byte(nil), serializedValue...), permanent: true}
	m.fireListenersLocked(key)
	return nil
}

func (m *InMemory) IsReady(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

var _ Transport = (*InMemory)(nil)
