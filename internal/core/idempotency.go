package core

import (
	"container/list"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// IdempotencyChecker implements two-tier deduplication of commands that
// carry a request id. A replayed command is answered with the result of the
// original execution instead of being executed again. Request ids are scoped
// per caller.
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: durable store (injected via interface)
	dbChecker DBIdempotencyChecker

	metrics *IdempotencyMetrics
}

// DBIdempotencyChecker looks up the stored result of a committed command.
type DBIdempotencyChecker interface {
	LookupResult(ctx context.Context, commandType string, caller common.Address, requestID string) (Result, bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   NewIdempotencyMetrics(),
	}
}

func compositeKey(commandType string, caller common.Address, requestID string) string {
	return fmt.Sprintf("%s:%s:%s", commandType, caller.Hex(), requestID)
}

// Lookup returns the cached result of a processed command (two-tier lookup).
func (ic *IdempotencyChecker) Lookup(ctx context.Context, commandType string, caller common.Address, requestID string) (Result, bool) {
	key := compositeKey(commandType, caller, requestID)

	// Tier 1: LRU check (hot path)
	if res, ok := ic.lru.Get(key); ok {
		ic.metrics.RecordDuplicate(commandType, "lru")
		return res, true
	}

	// Tier 2: store check (cold path)
	if ic.dbChecker != nil {
		res, ok, err := ic.dbChecker.LookupResult(ctx, commandType, caller, requestID)
		if err != nil {
			// Treat as unseen: state checks still reject a true replay of a
			// non-repeatable command (double bet, already claimed).
			ic.metrics.RecordTier2Error()
			return Result{}, false
		}
		if ok {
			ic.metrics.RecordDuplicate(commandType, "store")
			ic.lru.Add(key, res)
			return res, true
		}
	}

	return Result{}, false
}

// MarkProcessed caches the result after successful processing
func (ic *IdempotencyChecker) MarkProcessed(commandType string, caller common.Address, requestID string, res Result) {
	ic.lru.Add(compositeKey(commandType, caller, requestID), res)
}

// Warm preloads recently committed results after a restart.
func (ic *IdempotencyChecker) Warm(records []CommandRecord) {
	for _, r := range records {
		ic.lru.Add(compositeKey(r.CommandType, r.Caller, r.RequestID), r.Result)
	}
}

// Size returns current LRU occupancy.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Size()
}

// GetMetrics returns metrics for monitoring
func (ic *IdempotencyChecker) GetMetrics() *IdempotencyMetrics {
	return ic.metrics
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU cache of command results.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key    string
	result Result
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Get returns the cached result (promotes to front)
func (lru *IdempotencyLRU) Get(key string) (Result, bool) {
	elem, exists := lru.cache[key]
	if !exists {
		return Result{}, false
	}
	lru.lruList.MoveToFront(elem)
	return elem.Value.(*lruEntry).result, true
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	_, ok := lru.Get(key)
	return ok
}

// Add inserts a key (or promotes and overwrites if it exists)
func (lru *IdempotencyLRU) Add(key string, res Result) {
	if elem, exists := lru.cache[key]; exists {
		elem.Value.(*lruEntry).result = res
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&lruEntry{key: key, result: res})
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

// --- Metrics ---

// IdempotencyMetrics tracks dedup stats.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type IdempotencyMetrics struct {
	duplicatesLRU   map[string]int64 // command_type -> count
	duplicatesStore map[string]int64
	tier2Errors     int64
}

func NewIdempotencyMetrics() *IdempotencyMetrics {
	return &IdempotencyMetrics{
		duplicatesLRU:   make(map[string]int64),
		duplicatesStore: make(map[string]int64),
	}
}

func (m *IdempotencyMetrics) RecordDuplicate(commandType string, tier string) {
	if tier == "lru" {
		m.duplicatesLRU[commandType]++
	} else {
		m.duplicatesStore[commandType]++
	}
}

func (m *IdempotencyMetrics) RecordTier2Error() {
	m.tier2Errors++
}

func (m *IdempotencyMetrics) GetDuplicates(commandType string) (lru int64, store int64) {
	return m.duplicatesLRU[commandType], m.duplicatesStore[commandType]
}

func (m *IdempotencyMetrics) GetTier2Errors() int64 {
	return m.tier2Errors
}
