package fat32

import (
	"container/list"
	"sync"

	log "github.com/dsoprea/go-logging"
)

var cacheLog = log.NewLogger("fat32.cache")

// CacheEntry is what the directory cache maps an absolute path to, per
// spec.md §3.
type CacheEntry struct {
	Kind         EntryKind
	FirstCluster ClusterID
	Address      EntryAddress
	CompactName  ShortName
}

// CacheStatistics reports the directory cache's hit/miss/size counters, an
// accessor surface the original implementation exposes beyond what
// spec.md's prose mentions (see SPEC_FULL.md §4.1).
type CacheStatistics struct {
	Hits    uint64
	Misses  uint64
	Size    int
	MaxSize int
}

type cacheRecord struct {
	path  string
	entry CacheEntry
}

// DirectoryCache is a bounded LRU cache from absolute path to directory
// location, indexed a second way by first-cluster for invalidation on
// rename/remove, per spec.md §4.D.
//
// Eviction policy: plain least-recently-used, implemented directly over
// container/list rather than a third-party LRU package -- none of the
// pack's FAT/filesystem repos ship one to ground an adoption on (see
// DESIGN.md).
type DirectoryCache struct {
	mu sync.Mutex

	maxSize int
	ll      *list.List
	byPath  map[string]*list.Element
	byFirst map[ClusterID]map[string]*list.Element

	hits   uint64
	misses uint64
}

// NewDirectoryCache creates a cache bounded to maxSize entries.
func NewDirectoryCache(maxSize int) *DirectoryCache {
	if maxSize <= 0 {
		maxSize = DefaultDirectoryCacheSize
	}
	return &DirectoryCache{
		maxSize: maxSize,
		ll:      list.New(),
		byPath:  make(map[string]*list.Element),
		byFirst: make(map[ClusterID]map[string]*list.Element),
	}
}

// FindEntry looks up path, promoting it as most-recently-used on a hit.
func (c *DirectoryCache) FindEntry(path string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byPath[path]
	if !ok {
		c.misses++
		return CacheEntry{}, false
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(*cacheRecord).entry, true
}

// Insert adds path -> entry. If path is already cached pointing at the same
// first-cluster, the call is a silent no-op (idempotent on duplicates). If
// path is already cached pointing at a *different* cluster, the insert is
// refused and the original mapping wins (first-wins on genuine path
// collisions), per spec.md §9 Open Questions.
func (c *DirectoryCache) Insert(path string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byPath[path]; ok {
		existing := el.Value.(*cacheRecord).entry
		if existing.FirstCluster == entry.FirstCluster {
			c.ll.MoveToFront(el)
			return
		}
		cacheLog.Debugf("refusing cache insert for %q: already mapped to cluster %d", path, existing.FirstCluster)
		return
	}

	if c.ll.Len() >= c.maxSize {
		c.evictOldest()
	}

	rec := &cacheRecord{path: path, entry: entry}
	el := c.ll.PushFront(rec)
	c.byPath[path] = el

	byCluster, ok := c.byFirst[entry.FirstCluster]
	if !ok {
		byCluster = make(map[string]*list.Element)
		c.byFirst[entry.FirstCluster] = byCluster
	}
	byCluster[path] = el
}

func (c *DirectoryCache) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	rec := oldest.Value.(*cacheRecord)
	c.removeElement(oldest, rec)
	cacheLog.Debugf("evicted %q from directory cache (size %d)", rec.path, c.maxSize)
}

func (c *DirectoryCache) removeElement(el *list.Element, rec *cacheRecord) {
	c.ll.Remove(el)
	delete(c.byPath, rec.path)
	if byCluster, ok := c.byFirst[rec.entry.FirstCluster]; ok {
		delete(byCluster, rec.path)
		if len(byCluster) == 0 {
			delete(c.byFirst, rec.entry.FirstCluster)
		}
	}
}

// InvalidateByFirstCluster removes every cached path mapped to cluster,
// used after RemoveDirectory/RenameDirectory/DeleteFile so no lookup (by
// path or by cluster) can return stale data.
func (c *DirectoryCache) InvalidateByFirstCluster(cluster ClusterID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byCluster, ok := c.byFirst[cluster]
	if !ok {
		return
	}
	for _, el := range byCluster {
		rec := el.Value.(*cacheRecord)
		c.ll.Remove(el)
		delete(c.byPath, rec.path)
	}
	delete(c.byFirst, cluster)
}

// InvalidatePath removes a single cached path.
func (c *DirectoryCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byPath[path]
	if !ok {
		return
	}
	c.removeElement(el, el.Value.(*cacheRecord))
}

// Statistics returns a snapshot of the cache's hit/miss/size counters.
func (c *DirectoryCache) Statistics() CacheStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStatistics{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.ll.Len(),
		MaxSize: c.maxSize,
	}
}
