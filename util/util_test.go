package util

import (
	"reflect"
	"testing"
)

func TestPtr(t *testing.T) {
	p := Ptr(42)
	if *p != 42 {
		t.Errorf("expected *p=42, got %d", *p)
	}

	s := Ptr("hello")
	if *s != "hello" {
		t.Errorf("expected *s=hello, got %s", *s)
	}
}

func TestDeref(t *testing.T) {
	if Deref(Ptr(42)) != 42 {
		t.Error("expected Deref to return 42")
	}

	var p *int
	if Deref(p) != 0 {
		t.Error("expected Deref of nil to return zero value")
	}
}

func TestDerefOr(t *testing.T) {
	var p *int
	if DerefOr(p, 100) != 100 {
		t.Error("expected default for nil pointer")
	}
	if DerefOr(Ptr(0), 100) != 0 {
		t.Error("expected explicit zero to win over the default")
	}
	if DerefOr(Ptr(""), "unknown") != "" {
		t.Error("expected explicit empty string to win over the default")
	}
}

func TestSortedSet(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"dedupe and sort", []string{"web", "api", "web", "", "blue"}, []string{"api", "blue", "web"}},
		{"already sorted", []string{"a", "b"}, []string{"a", "b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SortedSet(tc.in)
			if got == nil {
				t.Fatal("expected non-nil slice")
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SortedSet(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestCopyMap(t *testing.T) {
	src := map[string]int{"a": 1}
	dst := CopyMap(src)
	dst["a"] = 2
	if src["a"] != 1 {
		t.Error("expected copy to be independent of the source")
	}
}
