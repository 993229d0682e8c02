package memory

import (
	"sort"

	"github.com/yndnr/authmesh-go/pkg/cmap"
)

type idSet map[string]struct{}

// userIndex maps a user ID to the IDs of that user's sessions.
//
// Sets are replaced, never mutated, so a slice returned by ids stays valid
// while writers continue.
type userIndex struct {
	m *cmap.Map[string, idSet]
}

func newUserIndex() userIndex {
	return userIndex{m: cmap.New[string, idSet]()}
}

func (ix userIndex) add(userID, sessionID string) {
	ix.m.Update(userID, func(cur idSet, _ bool) idSet {
		next := make(idSet, len(cur)+1)
		for id := range cur {
			next[id] = struct{}{}
		}
		next[sessionID] = struct{}{}
		return next
	})
}

func (ix userIndex) remove(userID, sessionID string) {
	if !ix.m.Has(userID) {
		return
	}
	ix.m.Update(userID, func(cur idSet, _ bool) idSet {
		next := make(idSet, len(cur))
		for id := range cur {
			if id != sessionID {
				next[id] = struct{}{}
			}
		}
		return next
	})
	ix.m.DeleteIf(userID, func(s idSet) bool { return len(s) == 0 })
}

// ids returns the user's session IDs in lexical order.
func (ix userIndex) ids(userID string) []string {
	set, ok := ix.m.Get(userID)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (ix userIndex) count(userID string) int {
	set, _ := ix.m.Get(userID)
	return len(set)
}

// users is the number of users with at least one session.
func (ix userIndex) users() int {
	return ix.m.Count()
}
