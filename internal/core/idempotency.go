package core

import (
	"container/list"
	"fmt"
)

// IdempotencyChecker deduplicates commands by their stable key. The
// backing LRU bounds memory; a key evicted after capacity rolls over
// can in principle be replayed, which is acceptable because upstream
// retries arrive within a small window.
type IdempotencyChecker struct {
	lru *IdempotencyLRU
}

func NewIdempotencyChecker(capacity int) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru: NewIdempotencyLRU(capacity),
	}
}

// IsDuplicate checks if a command has been processed
func (ic *IdempotencyChecker) IsDuplicate(commandType string, idempotencyKey string) bool {
	return ic.lru.Contains(compositeKey(commandType, idempotencyKey))
}

// MarkProcessed adds key to LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(commandType string, idempotencyKey string) {
	ic.lru.Add(compositeKey(commandType, idempotencyKey))
}

func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Size()
}

func (ic *IdempotencyChecker) Evictions() int64 {
	return ic.lru.Evictions()
}

func compositeKey(commandType, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", commandType, idempotencyKey)
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU cache for idempotency keys.
// Not thread-safe — only accessed from the single-threaded core.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64 // For metrics
}

type lruEntry struct {
	key string
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists)
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions (for metrics)
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
