// Package substore implements the durable per-subject layout:
// chunked txMap/txOrder storage with out-of-band metadata, an in-memory
// metadata LRU, and least-accessed eviction against a byte ceiling.
package substore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chronikcache/chronikcache/internal/contenthash"
	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/kvstore"
)

// ErrLimitExceeded is returned by CleanLeastAccessed when even deleting
// every subject would not bring durable size at or below the ceiling
//.
var ErrLimitExceeded = errors.New("substore: cannot shrink store to configured limit")

// Metadata is the per-subject bookkeeping record.
type Metadata struct {
	AccessCount  int       `json:"accessCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessAt time.Time `json:"lastAccessAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	DataHash     string    `json:"dataHash"`
	NumTxs       int       `json:"numTxs"`
}

// Data is what Read returns: the loaded view of a subject.
type Data struct {
	TxMap   map[string]domain.Tx
	TxOrder []string
	NumTxs  int
}

type chunkMeta struct {
	PageCount int `json:"pageCount"`
	TotalTxs  int `json:"totalTxs"`
}

// Store is the durable subject layout, fronted by an in-memory metadata
// LRU.
type Store struct {
	kv             kvstore.KV
	metaLRU        *lru.Cache[string, Metadata]
	maxItemsPerKey int

	// mu guards metadata read-modify-write and chunked writes so the
	// "read bumps accessCount" path never races a concurrent Write for
	// the same or another subject (metadata LRU read-update-
	// insert must be atomic).
	mu sync.Mutex
}

// New creates a Store. maxItemsPerKey is the chunking threshold (default
// 10000); metadataLRULimit bounds the in-memory metadata cache.
func New(kv kvstore.KV, maxItemsPerKey, metadataLRULimit int) (*Store, error) {
	if maxItemsPerKey <= 0 {
		maxItemsPerKey = 10_000
	}
	if metadataLRULimit <= 0 {
		metadataLRULimit = 10_000
	}
	c, err := lru.New[string, Metadata](metadataLRULimit)
	if err != nil {
		return nil, fmt.Errorf("substore: new metadata lru: %w", err)
	}
	return &Store{kv: kv, metaLRU: c, maxItemsPerKey: maxItemsPerKey}, nil
}

func (st *Store) loadMetadata(subject domain.Subject) (Metadata, bool, error) {
	key := metadataKey(string(subject.Namespace), subject.ID)
	if m, ok := st.metaLRU.Get(key); ok {
		return m, true, nil
	}
	raw, ok, err := kvstore.GetOK(st.kv, []byte(key))
	if err != nil || !ok {
		return Metadata{}, false, err
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, false, fmt.Errorf("substore: decode metadata %s: %w", key, err)
	}
	st.metaLRU.Add(key, m)
	return m, true, nil
}

func (st *Store) saveMetadata(subject domain.Subject, m Metadata) error {
	key := metadataKey(string(subject.Namespace), subject.ID)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("substore: encode metadata %s: %w", key, err)
	}
	if err := st.kv.Put([]byte(key), raw); err != nil {
		return err
	}
	st.metaLRU.Add(key, m)
	return nil
}

// Metadata returns the current metadata for subject, without touching
// access-count bookkeeping (unlike Read).
func (st *Store) Metadata(subject domain.Subject) (Metadata, bool, error) {
	return st.loadMetadata(subject)
}

// Read loads a subject's txMap/txOrder, preferring the chunked layout if a
// meta header is present, and bumps accessCount/lastAccessAt on success
//.
func (st *Store) Read(subject domain.Subject) (Data, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := subject.Key()
	meta, ok, err := st.loadMetadata(subject)
	if err != nil {
		return Data{}, false, err
	}
	if !ok {
		return Data{}, false, nil
	}

	order, err := st.readTxOrder(s)
	if err != nil {
		return Data{}, false, err
	}
	txMap, err := st.readTxMap(s)
	if err != nil {
		return Data{}, false, err
	}

	meta.AccessCount++
	meta.LastAccessAt = now()
	if err := st.saveMetadata(subject, meta); err != nil {
		return Data{}, false, err
	}

	return Data{TxMap: txMap, TxOrder: order, NumTxs: len(order)}, true, nil
}

func (st *Store) readTxOrder(s string) ([]string, error) {
	metaRaw, ok, err := kvstore.GetOK(st.kv, []byte(txOrderMetaKey(s)))
	if err != nil {
		return nil, err
	}
	if !ok {
		raw, ok, err := kvstore.GetOK(st.kv, []byte(txOrderKey(s)))
		if err != nil || !ok {
			return nil, err
		}
		var order []string
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, fmt.Errorf("substore: decode txOrder %s: %w", s, err)
		}
		return order, nil
	}
	var cm chunkMeta
	if err := json.Unmarshal(metaRaw, &cm); err != nil {
		return nil, fmt.Errorf("substore: decode txOrder meta %s: %w", s, err)
	}
	order := make([]string, 0, cm.TotalTxs)
	for i := 0; i < cm.PageCount; i++ {
		raw, ok, err := kvstore.GetOK(st.kv, []byte(txOrderChunkKey(s, i)))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("substore: missing txOrder chunk %d for %s", i, s)
		}
		var chunk []string
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil, fmt.Errorf("substore: decode txOrder chunk %d for %s: %w", i, s, err)
		}
		order = append(order, chunk...)
	}
	return order, nil
}

func (st *Store) readTxMap(s string) (map[string]domain.Tx, error) {
	metaRaw, ok, err := kvstore.GetOK(st.kv, []byte(txMapMetaKey(s)))
	if err != nil {
		return nil, err
	}
	if !ok {
		raw, ok, err := kvstore.GetOK(st.kv, []byte(txMapKey(s)))
		if err != nil || !ok {
			return nil, err
		}
		var m map[string]domain.Tx
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("substore: decode txMap %s: %w", s, err)
		}
		return m, nil
	}
	var cm chunkMeta
	if err := json.Unmarshal(metaRaw, &cm); err != nil {
		return nil, fmt.Errorf("substore: decode txMap meta %s: %w", s, err)
	}
	out := make(map[string]domain.Tx, cm.TotalTxs)
	for i := 0; i < cm.PageCount; i++ {
		raw, ok, err := kvstore.GetOK(st.kv, []byte(txMapChunkKey(s, i)))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("substore: missing txMap chunk %d for %s", i, s)
		}
		var chunk map[string]domain.Tx
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil, fmt.Errorf("substore: decode txMap chunk %d for %s: %w", i, s, err)
		}
		for k, v := range chunk {
			out[k] = v
		}
	}
	return out, nil
}

// Write persists data for subject, skipping entirely if its content hash
// is unchanged from the last durable write, making repeated writes of the
// same content idempotent.
func (st *Store) Write(subject domain.Subject, data Data) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	newHash, err := contenthash.Hash(data.TxOrder)
	if err != nil {
		return err
	}

	existing, ok, err := st.loadMetadata(subject)
	if err != nil {
		return err
	}
	if ok && existing.DataHash == newHash {
		return nil // no-op write
	}

	s := subject.Key()
	if err := st.writeChunked(s, data); err != nil {
		return err
	}

	m := existing
	if !ok {
		m.CreatedAt = now()
	}
	m.DataHash = newHash
	m.NumTxs = len(data.TxOrder)
	m.UpdatedAt = now()
	return st.saveMetadata(subject, m)
}

func (st *Store) writeChunked(s string, data Data) error {
	n := len(data.TxOrder)
	if n <= st.maxItemsPerKey {
		// switching from a previously chunked layout to flat: drop the
		// chunk keys so stale pages don't linger.
		if err := st.deletePaginated(txOrderKey(s)); err != nil {
			return err
		}
		if err := st.deletePaginated(txMapKey(s)); err != nil {
			return err
		}
		orderRaw, err := json.Marshal(data.TxOrder)
		if err != nil {
			return err
		}
		mapRaw, err := json.Marshal(data.TxMap)
		if err != nil {
			return err
		}
		if err := st.kv.Put([]byte(txOrderKey(s)), orderRaw); err != nil {
			return err
		}
		return st.kv.Put([]byte(txMapKey(s)), mapRaw)
	}

	pageCount := (n + st.maxItemsPerKey - 1) / st.maxItemsPerKey
	for i := 0; i < pageCount; i++ {
		lo := i * st.maxItemsPerKey
		hi := lo + st.maxItemsPerKey
		if hi > n {
			hi = n
		}
		chunkOrder := data.TxOrder[lo:hi]
		chunkMap := make(map[string]domain.Tx, len(chunkOrder))
		for _, txid := range chunkOrder {
			chunkMap[txid] = data.TxMap[txid]
		}
		orderRaw, err := json.Marshal(chunkOrder)
		if err != nil {
			return err
		}
		mapRaw, err := json.Marshal(chunkMap)
		if err != nil {
			return err
		}
		if err := st.kv.Put([]byte(txOrderChunkKey(s, i)), orderRaw); err != nil {
			return err
		}
		if err := st.kv.Put([]byte(txMapChunkKey(s, i)), mapRaw); err != nil {
			return err
		}
	}
	cm := chunkMeta{PageCount: pageCount, TotalTxs: n}
	cmRaw, err := json.Marshal(cm)
	if err != nil {
		return err
	}
	if err := st.kv.Put([]byte(txOrderMetaKey(s)), cmRaw); err != nil {
		return err
	}
	if err := st.kv.Put([]byte(txMapMetaKey(s)), cmRaw); err != nil {
		return err
	}
	// drop a stale flat layout if this subject previously fit in one key.
	if err := st.kv.Delete([]byte(txOrderKey(s))); err != nil {
		return err
	}
	return st.kv.Delete([]byte(txMapKey(s)))
}

// deletePaginated reads keyBase:meta; if present, deletes each chunk and
// the meta header, else deletes keyBase directly.
func (st *Store) deletePaginated(keyBase string) error {
	metaRaw, ok, err := kvstore.GetOK(st.kv, []byte(keyBase+metaSuffix))
	if err != nil {
		return err
	}
	if !ok {
		return st.kv.Delete([]byte(keyBase))
	}
	var cm chunkMeta
	if err := json.Unmarshal(metaRaw, &cm); err != nil {
		return fmt.Errorf("substore: decode paginated meta %s: %w", keyBase, err)
	}
	for i := 0; i < cm.PageCount; i++ {
		if err := st.kv.Delete([]byte(keyBase + ":" + strconv.Itoa(i))); err != nil {
			return err
		}
	}
	return st.kv.Delete([]byte(keyBase + metaSuffix))
}

// ClearSubject deletes both txMap and txOrder (paginated) plus the
// metadata key.
func (st *Store) ClearSubject(subject domain.Subject) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := subject.Key()
	if err := st.deletePaginated(txMapKey(s)); err != nil {
		return err
	}
	if err := st.deletePaginated(txOrderKey(s)); err != nil {
		return err
	}
	key := metadataKey(string(subject.Namespace), subject.ID)
	if err := st.kv.Delete([]byte(key)); err != nil {
		return err
	}
	st.metaLRU.Remove(key)
	return nil
}

// CalculateSize iterates every key, summing the byte length of keys and
// values.
func (st *Store) CalculateSize() (int64, error) {
	it, err := st.kv.Iterator(nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	var total int64
	for it.Next() {
		total += int64(len(it.Key())) + int64(len(it.Value()))
	}
	return total, it.Err()
}

// SizeBreakdown classifies durable byte usage into {transactions, metadata,
// other} by key-prefix, for stats reporting.
func (st *Store) SizeBreakdown() (transactions, metadata, other int64, err error) {
	it, err := st.kv.Iterator(nil)
	if err != nil {
		return 0, 0, 0, err
	}
	defer it.Close()
	for it.Next() {
		key := string(it.Key())
		size := int64(len(it.Key())) + int64(len(it.Value()))
		switch {
		case strings.HasPrefix(key, metadataPrefix):
			metadata += size
		case strings.Contains(key, txOrderSuffix) || strings.Contains(key, txMapSuffix):
			transactions += size
		default:
			other += size
		}
	}
	return transactions, metadata, other, it.Err()
}

type subjectSize struct {
	subject domain.Subject
	meta    Metadata
	size    int64
}

// CleanLeastAccessed deletes whole subjects, least-accessed first, until
// total durable size is at or below ceiling. exclude is skipped as an
// eviction candidate (a build that just wrote a subject shouldn't have that
// same write immediately reclaimed before it's ever been read). Returns the
// subjects deleted (so callers can drop any corresponding in-memory state)
// and ErrLimitExceeded if deleting every eligible subject still isn't
// enough.
func (st *Store) CleanLeastAccessed(ceiling int64, exclude ...domain.Subject) ([]domain.Subject, error) {
	total, err := st.CalculateSize()
	if err != nil {
		return nil, err
	}
	if total <= ceiling {
		return nil, nil
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		skip[s.Key()] = struct{}{}
	}

	subjects, err := st.listSubjectsWithSize()
	if err != nil {
		return nil, err
	}
	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].meta.AccessCount < subjects[j].meta.AccessCount
	})

	var evicted []domain.Subject
	for _, s := range subjects {
		if _, excluded := skip[s.subject.Key()]; excluded {
			continue
		}
		if total <= ceiling {
			return evicted, nil
		}
		if err := st.ClearSubject(s.subject); err != nil {
			return evicted, err
		}
		evicted = append(evicted, s.subject)
		total -= s.size
	}
	if total > ceiling {
		return evicted, ErrLimitExceeded
	}
	return evicted, nil
}

func (st *Store) listSubjectsWithSize() ([]subjectSize, error) {
	it, err := st.kv.Iterator([]byte(metadataPrefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []subjectSize
	for it.Next() {
		key := string(it.Key())
		ns, id, ok := namespaceAndIDFromMetadataKey(key)
		if !ok {
			continue
		}
		var m Metadata
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			return nil, fmt.Errorf("substore: decode metadata %s: %w", key, err)
		}
		subject := domain.Subject{Namespace: domain.Namespace(ns), ID: id}
		size, err := st.subjectSize(subject)
		if err != nil {
			return nil, err
		}
		out = append(out, subjectSize{subject: subject, meta: m, size: size + int64(len(key)) + int64(len(it.Value()))})
	}
	return out, it.Err()
}

func (st *Store) subjectSize(subject domain.Subject) (int64, error) {
	s := subject.Key()
	var total int64
	for _, base := range []string{txOrderKey(s), txMapKey(s)} {
		it, err := st.kv.Iterator([]byte(base))
		if err != nil {
			return 0, err
		}
		for it.Next() {
			if !strings.HasPrefix(string(it.Key()), base) {
				continue
			}
			total += int64(len(it.Key())) + int64(len(it.Value()))
		}
		if err := it.Err(); err != nil {
			it.Close()
			return 0, err
		}
		it.Close()
	}
	return total, nil
}

// ListSubjects returns every subject with a durable presence, derived from
// the "metadata:<ns>:<id>" keys.
func (st *Store) ListSubjects() ([]domain.Subject, error) {
	metaIt, err := st.kv.Iterator([]byte(metadataPrefix))
	if err != nil {
		return nil, err
	}
	defer metaIt.Close()
	var out []domain.Subject
	for metaIt.Next() {
		ns, id, ok := namespaceAndIDFromMetadataKey(string(metaIt.Key()))
		if !ok {
			continue
		}
		out = append(out, domain.Subject{Namespace: domain.Namespace(ns), ID: id})
	}
	return out, metaIt.Err()
}

var nowFunc = time.Now

func now() time.Time { return nowFunc() }
