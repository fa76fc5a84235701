// Package publish pushes dashboard snapshots to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/departureboard/departureboard/internal/api/models"
	"github.com/departureboard/departureboard/internal/dashboard"
)

// Encode renders a snapshot in the API wire format as of its poll time.
func Encode(snap *dashboard.Snapshot) ([]byte, error) {
	data, err := json.Marshal(models.NewDashboard(snap, snap.PolledAt))
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %d: %w", snap.Generation, err)
	}
	return data, nil
}

// Multi publishes to every publisher and joins their errors.
type Multi []dashboard.Publisher

// Publish implements dashboard.Publisher.
func (m Multi) Publish(ctx context.Context, snap *dashboard.Snapshot) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps the last published payload.
type Memory struct {
	mu         sync.RWMutex
	last       []byte
	generation uint64
	count      int
}

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish implements dashboard.Publisher.
func (m *Memory) Publish(_ context.Context, snap *dashboard.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = data
	m.generation = snap.Generation
	m.count++
	return nil
}

// Last returns the last payload and its generation.
func (m *Memory) Last() ([]byte, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.generation
}

// Count returns how many snapshots were published.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}
