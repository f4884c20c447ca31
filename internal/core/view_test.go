package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/valter-silva-au/todo/pkg/models"
)

func viewTasks() []models.Task {
	return []models.Task{
		{ID: "1", Text: "Buy milk", Priority: models.PriorityLow},
		{ID: "2", Text: "Pay rent", Priority: models.PriorityHigh},
		{ID: "3", Text: "Call mum", Priority: models.PriorityMedium, Done: true},
		{ID: "4", Text: "Buy stamps", Priority: models.PriorityHigh},
		{ID: "5", Text: "Milk the cow", Priority: models.PriorityMedium},
	}
}

func ids(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestSortByPriority_IsStable(t *testing.T) {
	in := []models.Task{
		{ID: "A", Priority: models.PriorityHigh},
		{ID: "B", Priority: models.PriorityMedium},
		{ID: "C", Priority: models.PriorityHigh},
	}
	got := SortByPriority(in)
	if diff := cmp.Diff([]string{"A", "C", "B"}, ids(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, ids(in)); diff != "" {
		t.Errorf("input was mutated (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter models.Filter
		want   []string
	}{
		{"no filter", models.Filter{}, []string{"1", "2", "3", "4", "5"}},
		{"search is case-insensitive", models.Filter{Search: "MILK"}, []string{"1", "5"}},
		{"priority", models.Filter{Priority: models.PriorityHigh}, []string{"2", "4"}},
		{"priority all", models.Filter{Priority: models.PriorityAll}, []string{"1", "2", "3", "4", "5"}},
		{"active", models.Filter{Status: models.StatusActive}, []string{"1", "2", "4", "5"}},
		{"completed", models.Filter{Status: models.StatusCompleted}, []string{"3"}},
		{"combined", models.Filter{Search: "buy", Priority: models.PriorityHigh, Status: models.StatusActive}, []string{"4"}},
		{"no match", models.Filter{Search: "zebra"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(viewTasks(), tt.filter)
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("Filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProject_SplitsAndSorts(t *testing.T) {
	v := Project(viewTasks(), models.Filter{})
	if diff := cmp.Diff([]string{"2", "4", "5", "1"}, ids(v.Active)); diff != "" {
		t.Errorf("active mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"3"}, ids(v.Completed)); diff != "" {
		t.Errorf("completed mismatch (-want +got):\n%s", diff)
	}
	if v.Total != 5 {
		t.Errorf("Total = %d, want 5", v.Total)
	}
}

func TestProject_TotalIgnoresFilter(t *testing.T) {
	v := Project(viewTasks(), models.Filter{Search: "rent"})
	if len(v.Active) != 1 || v.Total != 5 {
		t.Errorf("got %d active of %d total, want 1 of 5", len(v.Active), v.Total)
	}
}

func TestResolveCanonicalIndex_UsesIdentity(t *testing.T) {
	canonical := viewTasks()
	// Same fields, different identity.
	clone := canonical[1]
	clone.ID = "other"
	if got := ResolveCanonicalIndex(clone, canonical); got != -1 {
		t.Errorf("ResolveCanonicalIndex = %d, want -1", got)
	}
	if got := ResolveCanonicalIndex(canonical[3], canonical); got != 3 {
		t.Errorf("ResolveCanonicalIndex = %d, want 3", got)
	}
	idx := NewIndex(canonical)
	if idx["4"] != 3 || len(idx) != 5 {
		t.Errorf("unexpected index %v", idx)
	}
}
