// Package notify implements the in-process, single-threaded NotificationBus
// of spec.md §4.4: an observer registry keyed by NotificationKind, invoked
// synchronously and in registration order.
package notify

import (
	"fmt"

	"github.com/forestrie/go-keri/event"
)

// Kind enumerates every notification the Processor, EventLog and escrows
// exchange.
type Kind int

const (
	KeyEventAdded Kind = iota
	OutOfOrder
	PartiallySigned
	PartiallyWitnessed
	MissingDelegatingEvent
	ReceiptAccepted
	ReceiptOutOfOrder
	DuplicitousEvent
	TELEventAdded
	TELMissingIssuer
)

func (k Kind) String() string {
	switch k {
	case KeyEventAdded:
		return "KeyEventAdded"
	case OutOfOrder:
		return "OutOfOrder"
	case PartiallySigned:
		return "PartiallySigned"
	case PartiallyWitnessed:
		return "PartiallyWitnessed"
	case MissingDelegatingEvent:
		return "MissingDelegatingEvent"
	case ReceiptAccepted:
		return "ReceiptAccepted"
	case ReceiptOutOfOrder:
		return "ReceiptOutOfOrder"
	case DuplicitousEvent:
		return "DuplicitousEvent"
	case TELEventAdded:
		return "TELEventAdded"
	case TELMissingIssuer:
		return "TELMissingIssuer"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Notification carries the triggering event (or receipt reference) plus
// whatever context an escrow needs to index it.
type Notification struct {
	Kind  Kind
	Event event.SignedEvent

	// Receipt-kind notifications carry the subject identifier/sn instead of
	// a full event.
	ReceiptI string
	ReceiptS uint64

	// TEL-kind notifications carry the registry/credential coordinates
	// instead of a KEL SignedEvent (tel can't be imported here without a
	// cycle, since tel itself depends on notify).
	TELRegistryI string
	TELSN        uint64
	TELSAID      string

	// Err is populated for terminal outcomes an observer may want to log
	// (not retried; see spec.md §7).
	Err error
}

// Observer handles one notification synchronously. An error aborts the
// publication for that Kind and surfaces to Bus.Publish's caller, per
// spec.md §4.4.
type Observer func(n Notification) error

// Bus is the in-process pub/sub registry. It is not safe for concurrent use
// from multiple goroutines without external synchronization, matching
// spec.md §5's treatment of per-instance state.
type Bus struct {
	observers map[Kind][]Observer

	// depth guards against unbounded recursive publication (an observer
	// publishing further notifications, which §4.4 explicitly allows but
	// asks implementations to bound). Escrow reprocessing always converges
	// in a handful of hops in practice; this is a backstop, not a tuning
	// knob callers are expected to hit.
	depth    int
	maxDepth int
}

const defaultMaxDepth = 64

func NewBus() *Bus {
	return &Bus{observers: map[Kind][]Observer{}, maxDepth: defaultMaxDepth}
}

// Subscribe registers fn for kind, appended after any existing observers
// (registration order is invocation order).
func (b *Bus) Subscribe(kind Kind, fn Observer) {
	b.observers[kind] = append(b.observers[kind], fn)
}

// Publish invokes every observer registered for n.Kind, in order. The first
// observer error stops further dispatch for this call and is returned.
func (b *Bus) Publish(n Notification) error {
	b.depth++
	defer func() { b.depth-- }()
	if b.depth > b.maxDepth {
		return fmt.Errorf("notify: recursive publication exceeded depth %d (kind=%s)", b.maxDepth, n.Kind)
	}
	for _, obs := range b.observers[n.Kind] {
		if err := obs(n); err != nil {
			return err
		}
	}
	return nil
}
