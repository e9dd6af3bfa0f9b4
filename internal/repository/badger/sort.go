package badger

import (
	"sort"
	"strings"

	models "drivestore/internal/domain/models/namespace"
)

// Orderings matching the Postgres queries

func sortByName(entries []models.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if a != b {
			return a < b
		}
		return entries[i].ID < entries[j].ID
	})
}

func sortByTrashedAt(entries []models.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].TrashedAt, entries[j].TrashedAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return entries[i].ID < entries[j].ID
	})
}

func sortByPath(entries []models.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].MaterializedPath != entries[j].MaterializedPath {
			return entries[i].MaterializedPath < entries[j].MaterializedPath
		}
		return entries[i].Name < entries[j].Name
	})
}
