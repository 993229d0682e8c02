// Package storage opens the service.Store backends for AuthMesh.
//
// Backends:
//
//   - memory: in-process maps, lost on restart (package memory)
//   - badger: Badger v3 with serialisable snapshot isolation; transactions
//     that lose a write conflict are retried
//   - bolt: bbolt with a single writer
//   - postgres: pgx pool with row locks (package postgres)
//
// The embedded backends share one key layout and JSON encoding (kv.go):
//
//	s/<session_id>            session
//	t/<token_hash>            session_id
//	u/<user_id>/<session_id>  empty (per-user index)
//	c/<user_id>               credential
//	l/<login>                 user_id
//	m/<user_id>               mfa enrollment
package storage
