package pdom

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/cespare/xxhash/v2"

	"pdom/internal/db"
)

// Header root slots used by the index.
const (
	RootFileIndex    = 0
	RootBindingIndex = 1
)

// DefaultBuckets is the bucket count of newly created maps.
const DefaultBuckets = 1024

// Bucket table layout: [buckets][entries][head…].
const (
	tableBuckets = 0 * db.IntSize
	tableEntries = 1 * db.IntSize
	tableHeads   = 2 * db.IntSize
)

// Entry layout: [hash][value][next].
const (
	entryHash  = 0 * db.IntSize
	entryValue = 1 * db.IntSize
	entryNext  = 2 * db.IntSize

	entrySize = 3 * db.IntSize
)

// keyFunc recomputes the key of a stored record; maps keep only hashes.
type keyFunc func(d *db.Database, rec db.Offset) (string, error)

// hashMap is a persistent chained hash map from string keys to records.
// The bucket count is fixed when the map is created.
type hashMap struct {
	d       *db.Database
	name    string
	table   db.Offset
	buckets uint32
	key     keyFunc
}

func hashKey(key string) uint32 {
	h := xxhash.Sum64String(key)
	return uint32(h ^ h>>32)
}

// openHashMap loads the map rooted at root, creating it with buckets heads
// when the root is empty.
func openHashMap(d *db.Database, name string, root, buckets int, key keyFunc) (*hashMap, error) {
	m := &hashMap{d: d, name: name, key: key}
	table, err := d.Root(root)
	if err != nil {
		return nil, err
	}
	if table.IsNull() {
		if buckets <= 0 {
			buckets = DefaultBuckets
		}
		size := int(tableHeads) + buckets*db.PtrSize
		if size > d.MaxPayload() {
			return nil, fmt.Errorf("%s map: %d buckets do not fit in a %d byte chunk", name, buckets, d.ChunkSize())
		}
		n, err := safecast.Conv[uint32](buckets)
		if err != nil {
			return nil, err
		}
		if table, err = d.Malloc(size); err != nil {
			return nil, err
		}
		if err := d.PutUint(table+tableBuckets, n); err != nil {
			return nil, err
		}
		if err := d.SetRoot(root, table); err != nil {
			return nil, err
		}
	} else if err := d.CheckRecord(table); err != nil {
		return nil, fmt.Errorf("%s map: %w", name, err)
	}

	n, err := d.GetUint(table + tableBuckets)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%s map at %v has no buckets", name, table)
	}
	m.table, m.buckets = table, n
	return m, nil
}

func (m *hashMap) head(h uint32) db.Offset {
	return m.table + tableHeads + db.Offset((h%m.buckets)*db.PtrSize)
}

// find returns the record stored under key.
func (m *hashMap) find(key string) (db.Offset, bool, error) {
	h := hashKey(key)
	e, err := m.d.GetRecPtr(m.head(h))
	for err == nil && !e.IsNull() {
		var eh uint32
		if eh, err = m.d.GetUint(e + entryHash); err != nil {
			break
		}
		if eh == h {
			rec, err := m.d.GetRecPtr(e + entryValue)
			if err != nil {
				return db.NullOffset, false, err
			}
			k, err := m.key(m.d, rec)
			if err != nil {
				return db.NullOffset, false, fmt.Errorf("%s map entry %v: %w", m.name, e, err)
			}
			if k == key {
				return rec, true, nil
			}
		}
		e, err = m.d.GetRecPtr(e + entryNext)
	}
	return db.NullOffset, false, err
}

// insert adds rec under key at the front of its bucket. The caller has
// checked that key is absent.
func (m *hashMap) insert(key string, rec db.Offset) error {
	h := hashKey(key)
	head := m.head(h)
	next, err := m.d.GetRecPtr(head)
	if err != nil {
		return err
	}
	count, err := m.d.GetUint(m.table + tableEntries)
	if err != nil {
		return err
	}
	e, err := m.d.Malloc(entrySize)
	if err != nil {
		return err
	}
	if err := m.d.PutUint(e+entryHash, h); err != nil {
		return err
	}
	if err := m.d.PutRecPtr(e+entryValue, rec); err != nil {
		return err
	}
	if err := m.d.PutRecPtr(e+entryNext, next); err != nil {
		return err
	}
	if err := m.d.PutRecPtr(head, e); err != nil {
		return err
	}
	return m.d.PutUint(m.table+tableEntries, count+1)
}

// count returns the number of entries.
func (m *hashMap) count() (int, error) {
	n, err := m.d.GetUint(m.table + tableEntries)
	return int(n), err
}

// each calls fn for every stored record in bucket order.
func (m *hashMap) each(fn func(rec db.Offset) error) error {
	for b := uint32(0); b < m.buckets; b++ {
		e, err := m.d.GetRecPtr(m.head(b))
		for err == nil && !e.IsNull() {
			var rec db.Offset
			if rec, err = m.d.GetRecPtr(e + entryValue); err != nil {
				break
			}
			if err := fn(rec); err != nil {
				return err
			}
			e, err = m.d.GetRecPtr(e + entryNext)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
