// ABOUTME: Tests for exercise display names, record type helpers and JSON columns.
// ABOUTME: Covers locale fallback, max_reps_at bucket naming and Scan/Value round trips.
package models

import (
	"testing"
)

func TestDisplayName(t *testing.T) {
	e := &Exercise{
		Name:  "Bench Press",
		Names: LocalizedNames{"es": "Press de banca"},
	}

	tests := []struct {
		locale string
		want   string
	}{
		{"", "Bench Press"},
		{"en", "Bench Press"},
		{"es", "Press de banca"},
		{"ES", "Press de banca"},
		{"es-AR", "Press de banca"},
		{"fr", "Bench Press"},
	}
	for _, tt := range tests {
		if got := e.DisplayName(tt.locale); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.locale, got, tt.want)
		}
	}
}

func TestMaxRepsAtRecordType(t *testing.T) {
	tests := []struct {
		weight float64
		want   string
	}{
		{80, "max_reps_at_80"},
		{82.5, "max_reps_at_82.5"},
		{101.25, "max_reps_at_101.25"},
	}
	for _, tt := range tests {
		if got := MaxRepsAtRecordType(tt.weight); got != tt.want {
			t.Errorf("MaxRepsAtRecordType(%v) = %q, want %q", tt.weight, got, tt.want)
		}
		if kind := RecordKind(tt.want); kind != "max_reps_at" {
			t.Errorf("RecordKind(%q) = %q", tt.want, kind)
		}
	}
	if kind := RecordKind(RecordMaxWeight); kind != RecordMaxWeight {
		t.Errorf("RecordKind(max_weight) = %q", kind)
	}
}

func TestIntListScan(t *testing.T) {
	var l IntList
	if err := l.Scan("[1,3,5]"); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(l) != 3 || !l.Contains(3) || l.Contains(2) {
		t.Errorf("unexpected list %v", l)
	}

	if err := l.Scan([]byte("[7]")); err != nil {
		t.Fatalf("Scan bytes failed: %v", err)
	}
	if len(l) != 1 || l[0] != 7 {
		t.Errorf("unexpected list %v", l)
	}

	if err := l.Scan(nil); err != nil {
		t.Fatalf("Scan nil failed: %v", err)
	}
	if l != nil {
		t.Errorf("expected nil list, got %v", l)
	}

	if err := l.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestJSONColumnValue(t *testing.T) {
	v, err := IntList{1, 2}.Value()
	if err != nil || v != "[1,2]" {
		t.Errorf("IntList.Value() = %v, %v", v, err)
	}
	v, err = FloatList(nil).Value()
	if err != nil || v != nil {
		t.Errorf("nil FloatList.Value() = %v, %v", v, err)
	}
	v, err = LocalizedNames{}.Value()
	if err != nil || v != nil {
		t.Errorf("empty LocalizedNames.Value() = %v, %v", v, err)
	}
}

func TestIsValidEnums(t *testing.T) {
	if !IsValidRepType("seconds") || IsValidRepType("laps") {
		t.Error("IsValidRepType mismatch")
	}
	if !IsValidExerciseType("strength") || IsValidExerciseType("yoga") {
		t.Error("IsValidExerciseType mismatch")
	}
	if !IsValidGroupType("circuit") || IsValidGroupType("giant") {
		t.Error("IsValidGroupType mismatch")
	}
}
