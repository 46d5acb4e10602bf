package tournament

import "sort"

// EliminatedSet records the ids defeated within one session. It only grows;
// a new session gets a new set.
type EliminatedSet struct {
	ids map[ItemID]struct{}
}

func NewEliminatedSet() *EliminatedSet {
	return &EliminatedSet{ids: make(map[ItemID]struct{})}
}

// MarkEliminated adds id and reports whether it was new.
func (s *EliminatedSet) MarkEliminated(id ItemID) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *EliminatedSet) Contains(id ItemID) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *EliminatedSet) Count() int { return len(s.ids) }

// IDs returns a sorted copy.
func (s *EliminatedSet) IDs() []ItemID {
	out := make([]ItemID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
