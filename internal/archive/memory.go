package archive

import (
	"context"
	"fmt"
	"sync"
)

// MemoryArchive keeps objects in memory. Useful for tests and local runs.
type MemoryArchive struct {
	buckets Buckets
	mu      sync.RWMutex
	objects map[string]map[string]storedObject // bucket -> key -> object
}

type storedObject struct {
	data []byte
	obj  Object
}

var _ Archive = (*MemoryArchive)(nil)

func NewMemoryArchive(buckets Buckets) *MemoryArchive {
	return &MemoryArchive{
		buckets: buckets,
		objects: make(map[string]map[string]storedObject),
	}
}

func (m *MemoryArchive) BucketName(bucket Bucket) string {
	name, _ := m.buckets.name(bucket)
	return name
}

func (m *MemoryArchive) EnsureBuckets(context.Context) error { return nil }

func (m *MemoryArchive) Ping(context.Context) error { return nil }

func (m *MemoryArchive) Store(_ context.Context, bucket Bucket, key string, data []byte, obj Object) error {
	name, err := m.buckets.name(bucket)
	if err != nil {
		return &BackendError{Op: "put", Bucket: string(bucket), Key: key, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.objects[name] == nil {
		m.objects[name] = make(map[string]storedObject)
	}
	m.objects[name][key] = storedObject{data: append([]byte(nil), data...), obj: obj}
	return nil
}

func (m *MemoryArchive) Fetch(_ context.Context, bucketName, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[bucketName][key]
	if !ok {
		return nil, &BackendError{Op: "get", Bucket: bucketName, Key: key, Err: fmt.Errorf("no such object")}
	}
	return append([]byte(nil), o.data...), nil
}

// Metadata returns the metadata stored with an object, if present.
func (m *MemoryArchive) Metadata(bucket Bucket, key string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[m.BucketName(bucket)][key]
	return o.obj.Metadata, ok
}

// Count returns the number of objects in a logical archive.
func (m *MemoryArchive) Count(bucket Bucket) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[m.BucketName(bucket)])
}
