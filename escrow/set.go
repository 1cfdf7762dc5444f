package escrow

import (
	"github.com/forestrie/go-keri/notify"
	"github.com/forestrie/go-keri/validator"
)

// Set bundles the four named escrows of spec.md §4.4 and wires their
// rescan triggers onto a NotificationBus.
type Set struct {
	OutOfOrder         *OutOfOrder
	PartiallySigned    *PartiallySigned
	PartiallyWitnessed *PartiallyWitnessed
	MissingDelegation  *MissingDelegation
}

// NewSet constructs all four escrows and subscribes their rescan triggers
// on bus, per the Insert-trigger/Rescan-trigger table in spec.md §4.4.
func NewSet(v validator.Validator, st StateSource, acc Accepter, bus *notify.Bus, clock Clock) *Set {
	s := &Set{
		OutOfOrder:         NewOutOfOrder(v, st, acc, clock),
		PartiallySigned:    NewPartiallySigned(v, st, acc, clock),
		PartiallyWitnessed: NewPartiallyWitnessed(v, st, acc, clock),
		MissingDelegation:  NewMissingDelegation(v, st, acc, clock),
	}

	bus.Subscribe(notify.OutOfOrder, func(n notify.Notification) error {
		s.OutOfOrder.Insert(n.Event)
		return nil
	})
	bus.Subscribe(notify.PartiallySigned, func(n notify.Notification) error {
		return s.PartiallySigned.Insert(n.Event)
	})
	bus.Subscribe(notify.PartiallyWitnessed, func(n notify.Notification) error {
		s.PartiallyWitnessed.Insert(n.Event)
		return nil
	})
	bus.Subscribe(notify.MissingDelegatingEvent, func(n notify.Notification) error {
		s.MissingDelegation.Insert(n.Event)
		return nil
	})

	// Rescan triggers.
	bus.Subscribe(notify.KeyEventAdded, func(n notify.Notification) error {
		if err := s.OutOfOrder.Reprocess(n.Event.Event.I); err != nil {
			return err
		}
		return s.MissingDelegation.ReprocessAnchors(n.Event.Event.I, n.Event)
	})
	bus.Subscribe(notify.ReceiptAccepted, func(n notify.Notification) error {
		return s.PartiallyWitnessed.Reprocess(n.ReceiptI, n.ReceiptS)
	})

	return s
}
