package report

import "sync"

// LRUStore keeps recently read run records in memory and delegates to a
// backing Store on miss.
type LRUStore struct {
	mu   sync.Mutex
	cap  int
	back Store

	// most recent at head
	head, tail *lruEntry
	items      map[string]*lruEntry
}

type lruEntry struct {
	key  string
	rec  *RunRecord
	prev *lruEntry
	next *lruEntry
}

// NewLRUStore wraps back with a cache of the given capacity (at least 1).
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		items: make(map[string]*lruEntry, cap),
	}
}

// Save writes through to the backing store and caches rec on success.
func (s *LRUStore) Save(rec *RunRecord) error {
	if err := s.back.Save(rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.put(rec.ID, rec)
	s.mu.Unlock()
	return nil
}

// Load checks the cache first. On miss it loads from the backing store
// and promotes the record.
func (s *LRUStore) Load(runID string) (*RunRecord, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.moveToFront(e)
		r := e.rec
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	rec, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.put(runID, rec)
	s.mu.Unlock()
	return rec, nil
}

// List always reads the backing store. Returned records refresh the cache.
func (s *LRUStore) List(limit int) ([]*RunRecord, error) {
	recs, err := s.back.List(limit)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for i := len(recs) - 1; i >= 0; i-- {
		s.put(recs[i].ID, recs[i])
	}
	s.mu.Unlock()
	return recs, nil
}

// Len returns the number of cached records.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// put inserts or refreshes a cache entry. Callers hold mu.
func (s *LRUStore) put(key string, rec *RunRecord) {
	if e, ok := s.items[key]; ok {
		e.rec = rec
		s.moveToFront(e)
		return
	}
	e := &lruEntry{key: key, rec: rec}
	s.items[key] = e
	s.pushFront(e)
	if len(s.items) > s.cap {
		s.evict()
	}
}

func (s *LRUStore) pushFront(e *lruEntry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *LRUStore) moveToFront(e *lruEntry) {
	if s.head == e {
		return
	}
	s.remove(e)
	s.pushFront(e)
}

func (s *LRUStore) remove(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *LRUStore) evict() {
	if s.tail == nil {
		return
	}
	e := s.tail
	s.remove(e)
	delete(s.items, e.key)
}
