package events

import (
	"context"
	"reflect"
	"testing"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(PageLoaded, func(_ context.Context, ev Event) { got = append(got, "first:"+ev.URL) })
	bus.Subscribe(PageLoaded, func(_ context.Context, ev Event) { got = append(got, "second:"+ev.URL) })
	bus.Subscribe(PageLoadBefore, func(_ context.Context, ev Event) { got = append(got, "before:"+ev.URL) })

	bus.Emit(context.Background(), Event{Name: PageLoaded, URL: "/a"})

	want := []string{"first:/a", "second:/a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(PopState, func(context.Context, Event) { calls++ })

	bus.Emit(context.Background(), Event{Name: PopState})
	unsubscribe()
	unsubscribe()
	bus.Emit(context.Background(), Event{Name: PopState})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := bus.Len(PopState); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewBus()
	reached := false
	bus.Subscribe(PageLoaded, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(PageLoaded, func(context.Context, Event) { reached = true })

	bus.Emit(context.Background(), Event{Name: PageLoaded})

	if !reached {
		t.Error("handler after a panicking handler was not called")
	}
}

func TestBusReentrantEmit(t *testing.T) {
	bus := NewBus()
	var got []Name
	bus.Subscribe(PageNavigate, func(ctx context.Context, ev Event) {
		got = append(got, ev.Name)
		bus.Emit(ctx, Event{Name: PageLoaded, URL: ev.URL})
	})
	bus.Subscribe(PageLoaded, func(_ context.Context, ev Event) {
		got = append(got, ev.Name)
	})

	bus.Emit(context.Background(), Event{Name: PageNavigate, URL: "/x"})

	want := []Name{PageNavigate, PageLoaded}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
