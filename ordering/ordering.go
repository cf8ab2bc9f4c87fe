// Package ordering computes dense 1-based rank assignments for ordered rows.
// Stores apply the result inside a single transaction.
package ordering

import (
	"sort"

	"testflow_backend/apperr"
)

// Assignment is the order_index a row must hold.
type Assignment struct {
	ID    int
	Index int
}

// Dense maps ids, in the given order, to indices 1..len(ids).
func Dense(ids []int) []Assignment {
	out := make([]Assignment, len(ids))
	for i, id := range ids {
		out[i] = Assignment{ID: id, Index: i + 1}
	}
	return out
}

// Split returns the ids and indices of as as two parallel slices.
func Split(as []Assignment) (ids []int, indices []int) {
	ids = make([]int, len(as))
	indices = make([]int, len(as))
	for i, a := range as {
		ids[i] = a.ID
		indices[i] = a.Index
	}
	return ids, indices
}

// CheckPermutation reports a validation error unless proposed contains every
// id in existing exactly once and nothing else.
func CheckPermutation(existing, proposed []int) error {
	if len(proposed) != len(existing) {
		return apperr.Validation("ordering", "expected %d ids, got %d", len(existing), len(proposed))
	}
	known := make(map[int]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	seen := make(map[int]bool, len(proposed))
	for _, id := range proposed {
		if !known[id] {
			return apperr.Validation("ordering", "unknown id %d", id)
		}
		if seen[id] {
			return apperr.Validation("ordering", "duplicate id %d", id)
		}
		seen[id] = true
	}
	return nil
}

// IsDense reports whether indices is a permutation of 1..len(indices).
func IsDense(indices []int) bool {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i+1 {
			return false
		}
	}
	return true
}
