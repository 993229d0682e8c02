// Package memory provides an in-memory transactional store for AuthMesh.
//
// It implements service.Store with the same data structures the rest of
// the repo uses (sharded maps and a per-user session index) behind one
// store-wide lock:
//
//   - Update holds the write lock for the whole transaction, so read-write
//     transactions are serialised.
//   - View holds the read lock and rejects writes.
//   - Every write in Update records an undo step; a non-nil error from the
//     transaction function replays them in reverse.
//
// Data does not survive a restart. Use it for development and tests.
package memory
