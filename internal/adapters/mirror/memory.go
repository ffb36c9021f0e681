package mirror

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/okian/arena/internal/domain/errs"
)

// Memory is an in-process Client. Documents are stored as JSON so readers
// see exactly what a remote tree would return.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]json.RawMessage
	fail   error
	writes int
	closed bool
}

// NewMemory creates an empty in-memory mirror.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]json.RawMessage)}
}

// FailWith makes every following call return err. nil restores normal operation.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Memory) check() error {
	if m.closed {
		return ErrClosed
	}
	if m.fail != nil {
		return errs.WrapKind("mirror.memory", errs.ErrSync, m.fail)
	}
	return nil
}

func (m *Memory) Write(_ context.Context, path string, v any) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.WrapKind("mirror.memory.write", errs.ErrSync, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.docs[p] = raw
	m.writes++
	return nil
}

func (m *Memory) Read(_ context.Context, path string, v any) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return false, err
	}
	raw, ok := m.docs[p]
	if !ok {
		return false, nil
	}
	if v == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, errs.WrapKind("mirror.memory.read", errs.ErrSync, err)
	}
	return true, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	for k := range m.docs {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.docs, k)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Paths lists stored paths in order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for k := range m.docs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Writes returns the number of successful writes.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
