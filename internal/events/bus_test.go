package events

import "testing"

func TestBus_PublishAndNext_FIFO(t *testing.T) {
	b := New(4)
	b.Publish(Event{Type: TypeMeta, Data: 1})
	b.Publish(Event{Type: TypeToken, Data: 2})

	ev, ok := b.Next()
	if !ok || ev.Data != 1 {
		t.Fatalf("expected first event data=1, got %#v ok=%v", ev, ok)
	}
	ev, ok = b.Next()
	if !ok || ev.Data != 2 {
		t.Fatalf("expected second event data=2, got %#v ok=%v", ev, ok)
	}
}

func TestBus_DropsTokenUnderBackpressure(t *testing.T) {
	b := New(2)
	b.Publish(Event{Type: TypeMeta, Data: "keep-1"})
	b.Publish(Event{Type: TypeMeta, Data: "keep-2"})
	b.Publish(Event{Type: TypeToken, Data: "dropped"}) // queue full of structural events

	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", b.Dropped())
	}
	ev, _ := b.Next()
	if ev.Data != "keep-1" {
		t.Fatalf("expected keep-1 first, got %#v", ev)
	}
}

func TestBus_StructuralEvictsOldestToken(t *testing.T) {
	b := New(2)
	b.Publish(Event{Type: TypeToken, Data: "tok-1"})
	b.Publish(Event{Type: TypeMeta, Data: "meta-1"})
	b.Publish(Event{Type: TypeFinal, Data: "final-1"}) // should evict tok-1, not meta-1

	var got []any
	for {
		ev, ok := b.Next()
		if !ok {
			break
		}
		got = append(got, ev.Data)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 || got[0] != "meta-1" || got[1] != "final-1" {
		t.Fatalf("unexpected surviving events: %#v", got)
	}
}

func TestBus_CloseUnblocksNext(t *testing.T) {
	b := New(4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := b.Next(); ok {
			t.Error("expected Next to return ok=false after close")
		}
	}()
	b.Close()
	<-done
}
