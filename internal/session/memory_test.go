package session

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"
)

func newTestStore(t *testing.T, lifetime time.Duration) (*MemStore[Sid, string], *SidFactory) {
	sf, err := NewSidFactory(lifetime)
	if nil != err {
		t.Fatalf("failed NewSidFactory, got error %v", err)
	}
	store, err := NewMemStore[Sid, string](sf)
	if nil != err {
		t.Fatalf("failed NewMemStore, got error %v", err)
	}
	return store, sf
}

func TestNewMemStoreNilFactory(t *testing.T) {
	_, err := NewMemStore[Sid, string](nil)
	if nil == err {
		t.Error("NewMemStore accepted a nil KeyFactory")
	}
}

func TestMemStoreSaveGet(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		lifetime := time.Hour
		store, sf := newTestStore(t, lifetime)

		_, found := store.Get(sf.New())
		if found {
			t.Error("Get found a key that was never saved")
		}
		_, found = store.Get(Sid{})
		if found {
			t.Error("Get found the zero Sid")
		}

		sid := store.Save("open-1")
		time.Sleep(lifetime - time.Nanosecond)
		data, found := store.Get(sid)
		if !found || "open-1" != data {
			t.Fatalf("Get failed before expiry, got %q %v", data, found)
		}
		time.Sleep(time.Nanosecond)
		_, found = store.Get(sid)
		if found {
			t.Error("Get found an expired key")
		}
	})
}

func TestMemStoreDelete(t *testing.T) {
	store, sf := newTestStore(t, time.Hour)
	sid := store.Save("open-1")
	other := store.Save("open-2")

	if !store.Delete(sid) {
		t.Fatal("Delete did not find a saved key")
	}
	if _, found := store.Get(sid); found {
		t.Error("Get found a deleted key")
	}
	if store.Delete(sid) {
		t.Error("Delete found a key twice")
	}
	if store.Delete(sf.New()) || store.Delete(Sid{}) {
		t.Error("Delete found a key that was never saved")
	}
	if data, found := store.Get(other); !found || "open-2" != data {
		t.Errorf("Delete removed another key, got %q %v", data, found)
	}
}

func TestMemStoreSlotRecycling(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		lifetime := 15 * time.Minute
		store, sf := newTestStore(t, lifetime)
		step := lifetime / (slotCount - 1)

		// one key per tick, each slot gets reused once
		sids := make([]Sid, 0, 2*slotCount)
		for range 2 * slotCount {
			sids = append(sids, store.Save("data"))
			time.Sleep(step)
		}

		for i, sid := range sids {
			_, found := store.Get(sid)
			expired := nil != sf.Check(sid)
			if found == expired {
				t.Errorf("sid #%d: found %v while expired %v", i, found, expired)
			}
		}
		if _, found := store.Get(sids[len(sids)-1]); !found {
			t.Error("most recent key not found")
		}
	})
}

func TestMemStoreConcurrent(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 64 {
				value := string(rune('a'+i)) + string(rune('a'+j%26))
				sid := store.Save(value)
				got, found := store.Get(sid)
				if !found || value != got {
					t.Errorf("worker %d: lost value %q", i, value)
					return
				}
			}
		})
	}
	wg.Wait()
}
