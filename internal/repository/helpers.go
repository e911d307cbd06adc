package repository

import (
	"sort"
	"strings"

	"github.com/memberhub/mailengine/internal/domain"
)

// qualify prefixes every column in a comma-separated list with a table alias,
// for use in UPDATE ... FROM ... RETURNING clauses.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// sortForDispatch orders items the way the dispatcher must attempt them:
// priority first, then earliest eligible time, then age.
func sortForDispatch(items []*domain.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
