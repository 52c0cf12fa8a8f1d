// Package table implements the open-addressed hash table used for the VM's
// globals, keyed by interned string objects.
package table

import "github.com/rmay/quillvm/pkg/value"

// MaxLoad is the load-factor growth threshold.
const MaxLoad = 0.75

type entry struct {
	key   *value.ObjString
	val   value.Value
	used  bool
	alive bool
}

// Table is an open-addressed, linearly-probed hash map from an interned
// ObjString to a Value.
type Table struct {
	count   int
	entries []entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Count returns the number of live key/value pairs.
func (t *Table) Count() int { return t.count }

// Capacity returns the current backing array size.
func (t *Table) Capacity() int { return len(t.entries) }

func growCapacity(old int) int {
	if old < 8 {
		return 8
	}
	return old * 2
}

// findEntry locates the slot key belongs in, by linear probing from
// key.Hash % capacity.
//
// This reproduces a known defect (spec §9, §4.4): the probe treats a hash
// match alone as a key match, rather than confirming pointer identity or
// comparing bytes. With interned keys (see package value's Interner, and
// the compiler's use of github.com/josharian/intern) every equal string
// resolves to one canonical *ObjString before it ever reaches a Table, so
// two live keys sharing a slot here almost always share a pointer too; the
// defect is preserved verbatim at this level and only becomes practically
// invisible because callers keep their keys interned, exactly as the
// design notes' recommended fix describes.
func findEntry(entries []entry, key *value.ObjString) int {
	capacity := len(entries)
	idx := int(key.Hash) % capacity
	var tombstone = -1
	for {
		e := &entries[idx]
		if !e.used {
			if !e.alive {
				// Truly empty: the key is absent. Prefer a tombstone the
				// probe already passed, so Set reuses it.
				if tombstone != -1 {
					return tombstone
				}
				return idx
			}
			// Tombstone (used=false, alive=true): remember it, keep probing.
			if tombstone == -1 {
				tombstone = idx
			}
		} else if e.key.Hash == key.Hash {
			return idx
		}
		idx = (idx + 1) % capacity
	}
}

func (t *Table) adjustCapacity(newCapacity int) {
	grown := make([]entry, newCapacity)
	t.count = 0
	for _, e := range t.entries {
		if !e.used {
			continue
		}
		idx := findEntry(grown, e.key)
		grown[idx] = entry{key: e.key, val: e.val, used: true, alive: true}
		t.count++
	}
	t.entries = grown
}

// Get returns the value stored under key, and whether key is present.
func (t *Table) Get(key *value.ObjString) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	if !e.used {
		return value.Nil, false
	}
	return e.val, true
}

// Set stores val under key, growing the table first if the load factor
// policy requires it. Returns true if key was not already present.
//
// Load-factor policy: before each insert, if count <= capacity*MaxLoad,
// grow. Per spec.md §4.4 this is deliberately "<=" rather than the more
// natural ">" guard. Since the table never holds more than
// capacity*MaxLoad entries, the guard holds on every call: every Set,
// including an update of an existing key, doubles the capacity, so n calls
// leave a capacity of 8<<(n-1). Preserved here for deterministic parity
// with the source design rather than "corrected".
func (t *Table) Set(key *value.ObjString, val value.Value) bool {
	if float64(t.count) <= float64(len(t.entries))*MaxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	isNew := !e.used
	if isNew {
		t.count++
	}
	*e = entry{key: key, val: val, used: true, alive: true}
	return isNew
}

// Delete tombstones key's slot so later probes can still walk past it.
func (t *Table) Delete(key *value.ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	if !e.used {
		return false
	}
	*e = entry{alive: true}
	t.count--
	return true
}
