package target

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	generation  int64
}

func (o *memoryObject) meta() ObjectMeta {
	return ObjectMeta{
		ETag:       fmt.Sprintf(`"%d"`, o.generation),
		Generation: o.generation,
		Size:       int64(len(o.data)),
	}
}

// MemoryTarget is an in-memory Target. Acceptance tests use it in place of
// cloud storage.
type MemoryTarget struct {
	name string

	mu         sync.RWMutex
	objects    map[string]*memoryObject
	generation int64
}

// NewMemoryTarget creates an empty in-memory Target.
func NewMemoryTarget(name string) *MemoryTarget {
	return &MemoryTarget{name: name, objects: make(map[string]*memoryObject)}
}

func (m *MemoryTarget) Name() string { return m.name }

func (m *MemoryTarget) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	return m.ConditionalPut(ctx, key, body, WriteCondition{}, opts)
}

func (m *MemoryTarget) Get(_ context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectMeta{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), obj.meta(), nil
}

func (m *MemoryTarget) Head(_ context.Context, key string) (ObjectMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectMeta{}, ErrNotFound
	}
	return obj.meta(), nil
}

func (m *MemoryTarget) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryTarget) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObjectInfo
	for _, k := range slices.Sorted(maps.Keys(m.objects)) {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		meta := m.objects[k].meta()
		out = append(out, ObjectInfo{Key: k, Size: meta.Size, ETag: meta.ETag})
	}
	return out, nil
}

func (m *MemoryTarget) ConditionalPut(_ context.Context, key string, body io.Reader, cond WriteCondition, opts PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.satisfies(m.objects[key], cond) {
		return ErrPreconditionFailed
	}

	m.generation++
	m.objects[key] = &memoryObject{
		data:        data,
		contentType: opts.ContentType,
		metadata:    maps.Clone(opts.Metadata),
		generation:  m.generation,
	}
	return nil
}

// ContentType returns the content type stored with key, for tests.
func (m *MemoryTarget) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if obj, ok := m.objects[key]; ok {
		return obj.contentType
	}
	return ""
}

func (m *MemoryTarget) satisfies(existing *memoryObject, cond WriteCondition) bool {
	if cond.IfNotExists {
		return existing == nil
	}
	if cond.IfMatch == "" && cond.Generation == 0 {
		return true
	}
	if existing == nil {
		return false
	}
	meta := existing.meta()
	if cond.IfMatch != "" && cond.IfMatch != meta.ETag {
		return false
	}
	if cond.Generation != 0 && cond.Generation != meta.Generation {
		return false
	}
	return true
}

// The terraform-plugin-testing framework re-creates the provider between
// test steps, so memory targets live in a process-wide registry keyed by name.
var (
	memoryRegistryMu sync.Mutex
	memoryRegistry   = make(map[string]*MemoryTarget)
)

// GetOrCreateMemoryTarget returns the registered MemoryTarget called name,
// creating it on first use.
func GetOrCreateMemoryTarget(name string) *MemoryTarget {
	memoryRegistryMu.Lock()
	defer memoryRegistryMu.Unlock()

	t, ok := memoryRegistry[name]
	if !ok {
		t = NewMemoryTarget(name)
		memoryRegistry[name] = t
	}
	return t
}

// ResetMemoryTargets clears the registry.
func ResetMemoryTargets() {
	memoryRegistryMu.Lock()
	defer memoryRegistryMu.Unlock()
	clear(memoryRegistry)
}
