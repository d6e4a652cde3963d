package admission

import (
	"sync"
	"testing"
)

type fakeCloser struct {
	closed bool
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return nil
}

func TestGate_AdmitsOnlyOneAtATime(t *testing.T) {
	var g Gate
	a, b := &fakeCloser{}, &fakeCloser{}

	if !g.TryAdmit(a) {
		t.Fatalf("first admission should succeed")
	}
	if g.TryAdmit(b) {
		t.Fatalf("second concurrent admission should be rejected")
	}
	if !g.Occupied() {
		t.Fatalf("gate should report occupied")
	}
}

func TestGate_ClearAllowsReadmission(t *testing.T) {
	var g Gate
	a, b := &fakeCloser{}, &fakeCloser{}

	if !g.TryAdmit(a) {
		t.Fatalf("first admission should succeed")
	}
	g.Clear()
	if g.Occupied() {
		t.Fatalf("gate should be empty after Clear")
	}
	if !g.TryAdmit(b) {
		t.Fatalf("admission after Clear should succeed")
	}
}

func TestGate_ClearIsIdempotent(t *testing.T) {
	var g Gate
	a := &fakeCloser{}
	g.TryAdmit(a)
	g.Clear()
	g.Clear() // must not panic or misbehave
	if g.Occupied() {
		t.Fatalf("gate should remain empty")
	}
}

func TestGate_CloseCurrentClosesAdmittedSocket(t *testing.T) {
	var g Gate
	a := &fakeCloser{}
	g.TryAdmit(a)

	g.CloseCurrent()
	if !a.closed {
		t.Fatalf("CloseCurrent should close the admitted socket")
	}
	if !g.Occupied() {
		t.Fatalf("CloseCurrent must not itself clear the slot; the session's own Clear does")
	}
}

func TestGate_CloseCurrentNoopWhenEmpty(t *testing.T) {
	var g Gate
	g.CloseCurrent() // must not panic
	if g.Occupied() {
		t.Fatalf("gate should remain empty")
	}
}

func TestGate_ConcurrentAdmitRace(t *testing.T) {
	var g Gate
	const n = 50
	var wg sync.WaitGroup
	admitted := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			admitted[i] = g.TryAdmit(&fakeCloser{})
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("exactly one concurrent admission should succeed, got %d", count)
	}
}
