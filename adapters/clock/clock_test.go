package clock_test

import (
	"testing"
	"time"

	"github.com/victorteokw/docmap/adapters/clock"
)

func TestReal_Now_Advances(t *testing.T) {
	a := clock.Real{}.Now()
	b := clock.Real{}.Now()
	if b.Before(a) {
		t.Errorf("time went backwards: %v then %v", a, b)
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := clock.NewFake(t0)

	if !f.Now().Equal(t0) {
		t.Fatalf("now = %v", f.Now())
	}
	f.Advance(90 * time.Second)
	if !f.Now().Equal(t0.Add(90 * time.Second)) {
		t.Fatalf("after advance = %v", f.Now())
	}
	t1 := t0.Add(24 * time.Hour)
	f.Set(t1)
	if !f.Now().Equal(t1) {
		t.Fatalf("after set = %v", f.Now())
	}
}
