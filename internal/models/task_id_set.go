package models

// TaskIDSet is a list of task ids with set semantics: no duplicates, order irrelevant.
// It is stored as a JSON array.
type TaskIDSet []string

func NewTaskIDSet(ids ...string) TaskIDSet {
	set := TaskIDSet{}
	for _, id := range ids {
		set, _ = set.Add(id)
	}
	return set
}

func (s TaskIDSet) Contains(id string) bool {
	for _, existing := range s {
		if existing == id {
			return true
		}
	}
	return false
}

// Add appends id unless present. The receiver is never mutated in place.
func (s TaskIDSet) Add(id string) (TaskIDSet, bool) {
	if id == "" || s.Contains(id) {
		if s == nil {
			return TaskIDSet{}, false
		}
		return s, false
	}
	next := make(TaskIDSet, 0, len(s)+1)
	next = append(next, s...)
	return append(next, id), true
}

func (s TaskIDSet) Remove(id string) (TaskIDSet, bool) {
	next := make(TaskIDSet, 0, len(s))
	removed := false
	for _, existing := range s {
		if existing == id {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	return next, removed
}

// Difference returns the ids in s that are not in other.
func (s TaskIDSet) Difference(other TaskIDSet) TaskIDSet {
	out := TaskIDSet{}
	for _, id := range s {
		if !other.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

func (s TaskIDSet) Equal(other TaskIDSet) bool {
	a, b := NewTaskIDSet(s...), NewTaskIDSet(other...)
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !b.Contains(id) {
			return false
		}
	}
	return true
}
