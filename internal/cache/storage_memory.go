package cache

import (
	"context"
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// memoryStorage keeps each partition in its own go-cache instance. Entries
// never expire; partitions only go away through DeletePartition.
type memoryStorage struct {
	mu         sync.RWMutex
	partitions map[string]*gocache.Cache
}

// NewMemoryStorage returns a process-local Storage.
func NewMemoryStorage() Storage {
	return &memoryStorage{partitions: make(map[string]*gocache.Cache)}
}

func (s *memoryStorage) Open(_ context.Context, partition string) error {
	s.partition(partition)
	return nil
}

func (s *memoryStorage) partition(name string) *gocache.Cache {
	s.mu.RLock()
	c, ok := s.partitions[name]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.partitions[name]; ok {
		return c
	}
	// A zero cleanup interval disables the janitor goroutine.
	c = gocache.New(gocache.NoExpiration, 0)
	s.partitions[name] = c
	return c
}

func (s *memoryStorage) Partitions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStorage) Get(_ context.Context, partition, key string) (*Entry, bool, error) {
	s.mu.RLock()
	c, ok := s.partitions[partition]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	v, found := c.Get(key)
	if !found {
		return nil, false, nil
	}
	return v.(*Entry).clone(), true, nil
}

func (s *memoryStorage) Set(_ context.Context, partition, key string, entry *Entry) error {
	s.partition(partition).Set(key, entry.clone(), gocache.NoExpiration)
	return nil
}

func (s *memoryStorage) DeletePartition(_ context.Context, partition string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.partitions[partition]
	if !ok {
		return false, nil
	}
	c.Flush()
	delete(s.partitions, partition)
	return true, nil
}

func (s *memoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.partitions {
		c.Flush()
	}
	s.partitions = make(map[string]*gocache.Cache)
	return nil
}
