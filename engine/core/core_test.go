package core

import (
	"testing"
)

func TestIDAllocatorNeverReuses(t *testing.T) {
	ids := NewIDAllocator()
	seen := make(map[uint32]bool)
	prev := uint32(0)
	for i := 0; i < 100; i++ {
		id := ids.Next()
		if id == 0 {
			t.Fatalf("Next returned the reserved id 0")
		}
		if seen[id] {
			t.Fatalf("Next reused id %d", id)
		}
		if id <= prev {
			t.Fatalf("Next not increasing:\nhave %d\nwant > %d", id, prev)
		}
		seen[id] = true
		prev = id
	}
	if ids.Last() != prev {
		t.Fatalf("Last:\nhave %d\nwant %d", ids.Last(), prev)
	}
}

func TestIDAllocatorsAreIndependent(t *testing.T) {
	a, b := NewIDAllocator(), NewIDAllocator()
	a.Next()
	a.Next()
	if id := b.Next(); id != 1 {
		t.Fatalf("fresh allocator:\nhave %d\nwant 1", id)
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	var order []string
	first := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		order = append(order, "first")
		return data.Key == KEY_ESCAPE
	}
	second := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		order = append(order, "second")
		return true
	}
	if !bus.Register(EVENT_CODE_KEY_PRESSED, "a", first) {
		t.Fatal("Register a failed")
	}
	if !bus.Register(EVENT_CODE_KEY_PRESSED, "b", second) {
		t.Fatal("Register b failed")
	}
	if bus.Register(EVENT_CODE_KEY_PRESSED, "a", first) {
		t.Fatal("duplicate Register succeeded")
	}

	if !bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{Key: KEY_ESCAPE}) {
		t.Fatal("Fire: not handled")
	}
	if len(order) != 1 {
		t.Fatalf("handled event reached later listeners: %v", order)
	}

	order = nil
	bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{Key: KEY_W})
	if len(order) != 2 || order[1] != "second" {
		t.Fatalf("dispatch order:\nhave %v\nwant [first second]", order)
	}

	if !bus.Unregister(EVENT_CODE_KEY_PRESSED, "a") || bus.Unregister(EVENT_CODE_KEY_PRESSED, "a") {
		t.Fatal("Unregister should succeed exactly once")
	}
}

func TestInputFiresOnTransition(t *testing.T) {
	bus := NewEventBus()
	pressed := 0
	bus.Register(EVENT_CODE_KEY_PRESSED, "t", func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		pressed++
		return true
	})
	in := NewInput(bus)
	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	if pressed != 1 {
		t.Fatalf("press events:\nhave %d\nwant 1", pressed)
	}
	if !in.IsKeyDown(KEY_W) || in.WasKeyDown(KEY_W) {
		t.Fatal("key state before Update is wrong")
	}
	in.Update()
	if !in.WasKeyDown(KEY_W) {
		t.Fatal("WasKeyDown after Update should be true")
	}
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(0.016)
	}
	if have := m.FrameTime(); have < 15.99 || have > 16.01 {
		t.Fatalf("FrameTime:\nhave %v\nwant 16", have)
	}
	rolled := false
	for i := 0; i < 100 && !rolled; i++ {
		rolled = m.Update(0.016)
	}
	if !rolled || m.FPS <= 0 {
		t.Fatalf("FPS never rolled over: %v", m.FPS)
	}
}

func TestSetLogLevel(t *testing.T) {
	if err := SetLogLevel("warn"); err != nil {
		t.Fatalf("SetLogLevel(warn): %v", err)
	}
	if err := SetLogLevel("loud"); err == nil {
		t.Fatal("SetLogLevel(loud): want error")
	}
	SetLogLevel("debug")
}
