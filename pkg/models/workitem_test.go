package models

import (
	"testing"
)

func TestItemStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status ItemStatus
		want   bool
	}{
		{"pending is valid", ItemPending, true},
		{"in_progress is valid", ItemInProgress, true},
		{"passed is valid", ItemPassed, true},
		{"failed is valid", ItemFailed, true},
		{"skipped is valid", ItemSkipped, true},
		{"empty string is invalid", ItemStatus(""), false},
		{"unknown status is invalid", ItemStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("ItemStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestItemStatus_Terminal(t *testing.T) {
	tests := []struct {
		status ItemStatus
		want   bool
	}{
		{ItemPending, false},
		{ItemInProgress, false},
		{ItemPassed, true},
		{ItemFailed, true},
		{ItemSkipped, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkItem_Label(t *testing.T) {
	w := WorkItem{ID: 7, Title: "Add login form"}
	if got := w.Label(); got != "#7 Add login form" {
		t.Errorf("Label() = %q", got)
	}

	long := WorkItem{ID: 12, Description: "Implement the entire billing subsystem including invoices and refunds"}
	got := long.Label()
	if len(got) > 64 {
		t.Errorf("Label() too long: %q", got)
	}
	if got[:4] != "#12 " {
		t.Errorf("Label() = %q, want #12 prefix", got)
	}
}

func TestWorkItem_CloneIsDeep(t *testing.T) {
	orig := WorkItem{
		ID:        1,
		DependsOn: []int{2},
		Files:     []string{"a.go"},
		History:   []Transition{{From: ItemPending, To: ItemInProgress}},
	}
	c := orig.Clone()
	c.DependsOn[0] = 9
	c.Files[0] = "b.go"
	c.History[0].To = ItemFailed

	if orig.DependsOn[0] != 2 || orig.Files[0] != "a.go" || orig.History[0].To != ItemInProgress {
		t.Errorf("Clone shares backing arrays with original: %+v", orig)
	}
}

func TestValidationStep_DisplayName(t *testing.T) {
	if got := (ValidationStep{Name: "unit", Command: "go test"}).DisplayName(); got != "unit" {
		t.Errorf("DisplayName() = %q, want unit", got)
	}
	if got := (ValidationStep{Command: "go test ./..."}).DisplayName(); got != "go test ./..." {
		t.Errorf("DisplayName() = %q, want command", got)
	}
}
