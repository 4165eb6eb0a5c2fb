package voice

import "testing"

func TestObserversFireInRegistrationOrder(t *testing.T) {
	var o observers[string]
	var order []int

	o.Add(func(string) { order = append(order, 1) })
	o.Add(func(string) { order = append(order, 2) })
	o.Add(func(string) { order = append(order, 3) })

	o.Emit("x")
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("callback order = %v, want [1 2 3]", order)
	}
}

func TestObserversPanicDoesNotStopRemaining(t *testing.T) {
	var o observers[int]
	var got []int

	o.Add(func(int) { got = append(got, 1) })
	o.Add(func(int) { panic("boom") })
	o.Add(func(int) { got = append(got, 3) })

	o.Emit(0)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("surviving callbacks = %v, want [1 3]", got)
	}
}

func TestObserversRemove(t *testing.T) {
	var o observers[int]
	calls := 0

	id := o.Add(func(int) { calls++ })
	o.Emit(0)
	o.Remove(id)
	o.Emit(0)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestObserversNilHandlerIgnored(t *testing.T) {
	var o observers[int]
	if id := o.Add(nil); id != -1 {
		t.Fatalf("Add(nil) = %d, want -1", id)
	}
	o.Emit(0)
}
