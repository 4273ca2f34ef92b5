// Package kv holds the small keyed-store abstractions shared by the
// index and the plaintext resolver.
package kv

type KVS[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Range(func(key K, value V) bool)
	Len() int
	Clear()
}
