// Package cmap provides a sharded concurrent map with string keys.
//
// Keys are spread over a power-of-two number of shards with MurmurHash3;
// each shard has its own RWMutex. The storage engine indexes, the MFA
// attempt limiter and the per-IP request limiter all sit on it.
//
//	m := cmap.New[string, *domain.Session]()
//	m.Set(id, session)
//	s, ok := m.Get(id)
package cmap
