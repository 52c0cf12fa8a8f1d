package table

import (
	"testing"

	"github.com/rmay/quillvm/pkg/value"
)

// ==========================================
// BASIC GET/SET/DELETE
// ==========================================

func TestGetOnEmptyTableIsMissing(t *testing.T) {
	heap := &value.Heap{}
	tbl := New()
	key := value.NewObjString(heap, "x")
	if _, ok := tbl.Get(key); ok {
		t.Errorf("expected Get on an empty table to report missing")
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	heap := &value.Heap{}
	tbl := New()
	key := value.NewObjString(heap, "x")
	tbl.Set(key, value.Number(42))
	got, ok := tbl.Get(key)
	if !ok || got.AsNumber() != 42 {
		t.Fatalf("expected (42, true), got (%v, %v)", got, ok)
	}
}

func TestSetReturnsWhetherKeyWasNew(t *testing.T) {
	heap := &value.Heap{}
	tbl := New()
	key := value.NewObjString(heap, "x")
	if isNew := tbl.Set(key, value.Number(1)); !isNew {
		t.Errorf("expected first Set to report a new key")
	}
	if isNew := tbl.Set(key, value.Number(2)); isNew {
		t.Errorf("expected second Set on the same key to report not-new")
	}
	got, _ := tbl.Get(key)
	if got.AsNumber() != 2 {
		t.Errorf("expected the second Set's value to win, got %v", got)
	}
}

func TestDeleteTombstonesAndIsReflectedInGet(t *testing.T) {
	heap := &value.Heap{}
	tbl := New()
	key := value.NewObjString(heap, "x")
	tbl.Set(key, value.Number(1))
	if !tbl.Delete(key) {
		t.Fatalf("expected Delete of a present key to succeed")
	}
	if _, ok := tbl.Get(key); ok {
		t.Errorf("expected Get after Delete to report missing")
	}
	if tbl.Delete(key) {
		t.Errorf("expected a second Delete of the same key to report false")
	}
}

func TestDeleteDoesNotBreakProbingPastTheTombstone(t *testing.T) {
	heap := &value.Heap{}
	tbl := New()
	keys := make([]*value.ObjString, 0, 8)
	for i := 0; i < 8; i++ {
		k := value.NewObjString(heap, string(rune('a'+i)))
		keys = append(keys, k)
		tbl.Set(k, value.Number(float64(i)))
	}
	tbl.Delete(keys[0])
	for i := 1; i < len(keys); i++ {
		got, ok := tbl.Get(keys[i])
		if !ok || got.AsNumber() != float64(i) {
			t.Errorf("key %d: expected (%d, true) after an unrelated delete, got (%v, %v)", i, i, got, ok)
		}
	}
}

// ==========================================
// GROWTH
// ==========================================

func TestCountTracksLiveEntriesAcrossGrowth(t *testing.T) {
	heap := &value.Heap{}
	tbl := New()
	const n = 100
	for i := 0; i < n; i++ {
		k := value.NewObjString(heap, string(rune(i))+"-key")
		tbl.Set(k, value.Number(float64(i)))
	}
	if tbl.Count() != n {
		t.Fatalf("expected Count() == %d, got %d", n, tbl.Count())
	}
	if tbl.Capacity() < n {
		t.Errorf("expected capacity to have grown to at least %d, got %d", n, tbl.Capacity())
	}
}

func TestAllKeysSurviveGrowth(t *testing.T) {
	heap := &value.Heap{}
	tbl := New()
	const n = 50
	keys := make([]*value.ObjString, n)
	for i := range keys {
		keys[i] = value.NewObjString(heap, string(rune('A'+i%26))+string(rune(i)))
		tbl.Set(keys[i], value.Number(float64(i)))
	}
	for i, k := range keys {
		got, ok := tbl.Get(k)
		if !ok || got.AsNumber() != float64(i) {
			t.Errorf("key %d lost across growth: got (%v, %v)", i, got, ok)
		}
	}
}

// ==========================================
// INTERNED-KEY COLLISION MITIGATION (open question #1)
// ==========================================

func TestInternedKeysAvoidTheHashOnlyEqualityDefect(t *testing.T) {
	heap := &value.Heap{}
	in := value.NewInterner(heap)
	tbl := New()

	a := in.Intern("alpha")
	b := in.Intern("beta")
	tbl.Set(a, value.Number(1))
	tbl.Set(b, value.Number(2))

	gotA, _ := tbl.Get(a)
	gotB, _ := tbl.Get(b)
	if gotA.AsNumber() != 1 || gotB.AsNumber() != 2 {
		t.Fatalf("expected distinct interned keys to keep distinct values, got a=%v b=%v", gotA, gotB)
	}

	// Re-interning the same lexeme must resolve to the same pointer, so a
	// second lookup with "freshly interned" key still finds the entry.
	again := in.Intern("alpha")
	got, ok := tbl.Get(again)
	if !ok || got.AsNumber() != 1 {
		t.Errorf("expected re-interned key to find the original entry, got (%v, %v)", got, ok)
	}
}
