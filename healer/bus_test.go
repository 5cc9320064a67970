package healer

import (
	"testing"
	"time"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	bus.Publish(NewProcessDown("widget", 1))

	done := make(chan struct{})
	for _, r := range []*Receiver{a, b} {
		ev, err, ok := r.Recv(done)
		if !ok || err != nil {
			t.Fatalf("Recv() = %v, %v, %v", ev, err, ok)
		}
		if ev.Name != "widget" {
			t.Fatalf("Recv() event = %+v, want name widget", ev)
		}
	}
}

func TestBusLaggedSubscriber(t *testing.T) {
	bus := NewBus(2)
	r := bus.Subscribe()
	defer r.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(NewProcessDown("widget", i))
	}

	done := make(chan struct{})
	_, err, ok := r.Recv(done)
	if !ok {
		t.Fatal("Recv() reported end of stream, want a Lagged error")
	}
	if _, isLagged := err.(Lagged); !isLagged {
		t.Fatalf("Recv() err = %v, want Lagged", err)
	}
}

func TestBusCloseDrainsThenEndsStream(t *testing.T) {
	bus := NewBus(4)
	r := bus.Subscribe()
	defer r.Close()

	bus.Publish(NewProcessDown("widget", 1))
	bus.Close()

	done := make(chan struct{})

	ev, err, ok := r.Recv(done)
	if !ok || err != nil || ev.Name != "widget" {
		t.Fatalf("first Recv() after Close = %+v, %v, %v", ev, err, ok)
	}

	_, err, ok = r.Recv(done)
	if ok || err != nil {
		t.Fatalf("Recv() after drain = %v, %v, want ok=false err=nil", err, ok)
	}
}

func TestBusPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus(1)
	r := bus.Subscribe()
	defer r.Close()

	done := make(chan struct{})
	publishDone := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(NewProcessDown("widget", i))
		}
		close(publishDone)
	}()

	select {
	case <-publishDone:
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked on a subscriber that never called Recv()")
	}

	_, _, _ = r.Recv(done)
}
