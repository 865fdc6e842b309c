package redbankstate

import (
	"sort"
	"strings"

	"redbank/storage"
)

// Overlay buffers writes on top of a base database so a message either
// commits wholesale or leaves no trace. Reads see the buffered writes first.
type Overlay struct {
	base    storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

func NewOverlay(base storage.Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	o.writes[string(key)] = buf
	delete(o.deletes, string(key))
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if _, gone := o.deletes[string(key)]; gone {
		return nil, storage.ErrNotFound
	}
	if value, ok := o.writes[string(key)]; ok {
		buf := make([]byte, len(value))
		copy(buf, value)
		return buf, nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	if _, gone := o.deletes[string(key)]; gone {
		return false, nil
	}
	if _, ok := o.writes[string(key)]; ok {
		return true, nil
	}
	return o.base.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

// IteratePrefix merges buffered writes with the base so mid-message queries
// observe a consistent view.
func (o *Overlay) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	err := o.base.IteratePrefix(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	if err != nil {
		return err
	}
	for key, value := range o.writes {
		if strings.HasPrefix(key, string(prefix)) {
			merged[key] = value
		}
	}
	for key := range o.deletes {
		delete(merged, key)
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !fn([]byte(key), merged[key]) {
			return nil
		}
	}
	return nil
}

// Close is a no-op; the overlay does not own the base connection.
func (o *Overlay) Close() error {
	return nil
}

// Commit flushes every buffered mutation to the base database.
func (o *Overlay) Commit() error {
	for key := range o.deletes {
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	for key, value := range o.writes {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops every buffered mutation.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

var _ storage.Database = (*Overlay)(nil)
