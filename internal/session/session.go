// Package session keeps short lived server side sessions in memory.
//
// Session keys are self describing: they carry their issue time and a MAC,
// so that expired or forged keys are rejected before any map lookup.
package session

// KeyFactory issues & validates session keys.
//
// Tick returns the clock tick at which key was issued, ticks increase by 1 every
// Lifetime/(slotCount-1) so that a key always expires before MemStore recycles its slot.
type KeyFactory[K comparable] interface {
	New() K
	Check(key K) error
	Tick(key K) int64
}
