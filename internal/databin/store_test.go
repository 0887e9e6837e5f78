package databin

import (
	"testing"

	"github.com/nerrad567/labflow-core/internal/expr"
)

func TestStoreSetGet(t *testing.T) {
	s := NewStore()

	col := Ref{Kind: KindColumn, Name: "voltage"}
	s.Set(col, "1.500e+00")
	if v, ok := s.Get(col); !ok || v != "1.500e+00" {
		t.Fatalf("Get(column voltage) = %q, %v", v, ok)
	}

	// A parameter with the same name lives in a separate namespace.
	par := Ref{Kind: KindParameter, Name: "voltage"}
	if _, ok := s.Get(par); ok {
		t.Fatal("parameter namespace must be independent of columns")
	}
	s.Set(par, "2.000e+00")
	if v, _ := s.Get(par); v != "2.000e+00" {
		t.Fatalf("Get(parameter voltage) = %q", v)
	}
	if v, _ := s.Get(col); v != "1.500e+00" {
		t.Fatalf("column clobbered by parameter write: %q", v)
	}
}

func TestStoreOverwrite(t *testing.T) {
	s := NewStore()
	ref := Ref{Kind: KindColumn, Name: "temperature"}
	s.Set(ref, "4.2000")
	s.Set(ref, "4.2105")
	if v, _ := s.Get(ref); v != "4.2105" {
		t.Fatalf("bin holds %q, want latest value", v)
	}
}

func TestStoreImplementsExprContext(t *testing.T) {
	s := NewStore()
	s.SetConstant("run name", "cooldown 7")
	s.Set(Ref{Kind: KindColumn, Name: "T_sample"}, "4.2000")
	s.Set(Ref{Kind: KindParameter, Name: "pass"}, "3")

	var ctx expr.Context = s
	got := expr.Resolve("Run @(run name): T=#(T_sample) K, pass $(pass)", ctx)
	want := "Run cooldown 7: T=4.2000 K, pass 3"
	if got != want {
		t.Fatalf("Resolve() = %q, want %q", got, want)
	}
}

func TestStoreUnknownNameResolvesNotFound(t *testing.T) {
	s := NewStore()
	if got := expr.Resolve("#(missing)", s); got != expr.NotFound {
		t.Fatalf("Resolve(unknown column) = %q, want %q", got, expr.NotFound)
	}
}

func TestStoreObservers(t *testing.T) {
	s := NewStore()

	var gotRef Ref
	var gotValue string
	calls := 0
	s.Subscribe(func(ref Ref, value string) {
		gotRef, gotValue = ref, value
		calls++
	})

	ref := Ref{Kind: KindColumn, Name: "field"}
	s.Set(ref, "0.5000")

	if calls != 1 {
		t.Fatalf("observer called %d times, want 1", calls)
	}
	if gotRef != ref || gotValue != "0.5000" {
		t.Fatalf("observer saw %v=%q", gotRef, gotValue)
	}

	// Constants do not notify.
	s.SetConstant("date", "2026-03-01")
	if calls != 1 {
		t.Fatal("constant write must not notify observers")
	}
}

func TestStoreNamesSorted(t *testing.T) {
	s := NewStore()
	for _, name := range []string{"z", "a", "m"} {
		s.Set(Ref{Kind: KindColumn, Name: name}, "0")
	}
	names := s.Names(KindColumn)
	want := []string{"a", "m", "z"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}
