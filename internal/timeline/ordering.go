package timeline

import (
	"cmp"
	"slices"
	"strings"
)

// CompareContent orders comments by ups descending, then timestamp descending.
// Items equal on both are ordered by id so the ordering is total.
func CompareContent(a, b ContentItem) int {
	if c := cmp.Compare(b.Ups, a.Ups); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortContent sorts items in place using CompareContent.
func SortContent(items []ContentItem) {
	slices.SortStableFunc(items, CompareContent)
}

// SortFollowers sorts followers ascending by name, keeping the relative order of equal names.
func SortFollowers(followers []FollowerEntry) {
	slices.SortStableFunc(followers, func(a, b FollowerEntry) int {
		return strings.Compare(string(a.Name), string(b.Name))
	})
}

// UniqueUserIDs returns ids without duplicates or empty values, sorted ascending.
func UniqueUserIDs(ids []UserID) []UserID {
	out := make([]UserID, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
