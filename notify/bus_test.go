package notify

import (
	"errors"
	"testing"
)

func TestPublishInvokesObserversInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.Subscribe(KeyEventAdded, func(n Notification) error { order = append(order, 1); return nil })
	b.Subscribe(KeyEventAdded, func(n Notification) error { order = append(order, 2); return nil })

	if err := b.Publish(Notification{Kind: KeyEventAdded}); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected observers invoked in registration order, got %v", order)
	}
}

func TestPublishStopsOnFirstError(t *testing.T) {
	b := NewBus()
	wantErr := errors.New("boom")
	var secondCalled bool
	b.Subscribe(OutOfOrder, func(n Notification) error { return wantErr })
	b.Subscribe(OutOfOrder, func(n Notification) error { secondCalled = true; return nil })

	err := b.Publish(Notification{Kind: OutOfOrder})
	if err != wantErr {
		t.Fatalf("expected the first observer's error to propagate, got %v", err)
	}
	if secondCalled {
		t.Fatal("a failing observer must stop further dispatch for that Publish call")
	}
}

func TestPublishOnlyInvokesObserversForMatchingKind(t *testing.T) {
	b := NewBus()
	var called bool
	b.Subscribe(ReceiptAccepted, func(n Notification) error { called = true; return nil })

	if err := b.Publish(Notification{Kind: KeyEventAdded}); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("an observer for a different Kind must not be invoked")
	}
}

func TestPublishBoundsRecursiveDepth(t *testing.T) {
	b := NewBus()
	b.Subscribe(KeyEventAdded, func(n Notification) error {
		return b.Publish(Notification{Kind: KeyEventAdded})
	})

	err := b.Publish(Notification{Kind: KeyEventAdded})
	if err == nil {
		t.Fatal("expected recursive self-publication to eventually hit the max-depth guard")
	}
}
