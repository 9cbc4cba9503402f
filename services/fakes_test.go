package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"pos-sync-service/models"
)

// fakeSnapshotRepo is an in-memory SnapshotRepository with fault injection.
type fakeSnapshotRepo struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	failSaves int
	loads     int
	saves     int
	saveHook  func() // runs at the start of every Save, outside the lock
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{blobs: make(map[string][]byte)}
}

func (f *fakeSnapshotRepo) Load(ctx context.Context, kind, partition string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	data, ok := f.blobs[kind+":"+partition]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (f *fakeSnapshotRepo) Save(ctx context.Context, kind, partition string, data []byte) error {
	if f.saveHook != nil {
		f.saveHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves > 0 {
		f.failSaves--
		return errors.New("snapshot store unavailable")
	}
	f.saves++
	cp := make([]byte, len(data))
	copy(cp, data)
	f.blobs[kind+":"+partition] = cp
	return nil
}

func (f *fakeSnapshotRepo) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeSnapshotRepo) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// fakeConn records frames written to a session.
type fakeConn struct {
	mu         sync.Mutex
	frames     [][]byte
	failWrites bool
	closed     bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("write failed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// envelopes decodes every recorded frame as a generic JSON object.
func (c *fakeConn) envelopes() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, frame := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(frame, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// fakeProducer records emitted transaction events.
type fakeProducer struct {
	mu     sync.Mutex
	events []models.TransactionEvent
	fail   bool
}

func (p *fakeProducer) SendTransactionEvent(ctx context.Context, event models.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakeProducer) recorded() []models.TransactionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TransactionEvent(nil), p.events...)
}
