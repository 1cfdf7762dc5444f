package processor

import (
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/notify"
	"github.com/forestrie/go-keri/query"
	"github.com/forestrie/go-keri/state"
	"github.com/forestrie/go-keri/validator"
)

// Store is the narrow eventlog.Store surface Processor depends on.
type Store interface {
	AppendEvent(se event.SignedEvent) (bool, error)
	GetEvent(d digest.Digest) (event.SignedEvent, bool, error)
	GetEventAt(i string, sn uint64) (event.SignedEvent, bool, error)
	Range(i string, fromSN uint64, limit int) ([]event.SignedEvent, error)
	AppendReceipt(i string, r event.NontransferableReceipt) error
	Last(i string) (event.SignedEvent, bool, error)
}

// stateComputer adapts a Store into the state.EventSource + escrow/query
// StateSource contracts, a pure function of the log per spec.md §9.
type stateComputer struct{ store Store }

func (c stateComputer) Last(i string) (event.SignedEvent, bool, error) { return c.store.Last(i) }
func (c stateComputer) Range(i string, fromSN uint64, limit int) ([]event.SignedEvent, error) {
	return c.store.Range(i, fromSN, limit)
}
func (c stateComputer) Compute(identifier string) (state.IdentifierState, bool, error) {
	return state.Compute(c, identifier)
}

// delegationResolver implements validator.DelegationResolver over a Store.
type delegationResolver struct{ store Store }

func (d delegationResolver) KnownKEL(delegator string) (bool, error) {
	_, ok, err := d.store.Last(delegator)
	return ok, err
}

func (d delegationResolver) HasAnchor(delegator, delegatee string, sn uint64, dig digest.Digest) (bool, error) {
	events, err := d.store.Range(delegator, 0, 0)
	if err != nil {
		return false, err
	}
	for _, se := range events {
		if se.Event.T != event.Ixn && !se.Event.T.IsEstablishment() {
			continue
		}
		for _, s := range se.Event.Seals {
			if s.Matches(delegatee, sn, dig) {
				return true, nil
			}
		}
	}
	return false, nil
}

// receiptCounter implements validator.ReceiptCounter over a Store.
type receiptCounter struct{ store Store }

func (r receiptCounter) WitnessPrefixes(i string, sn uint64, d digest.Digest) ([]string, error) {
	se, ok, err := r.store.GetEventAt(i, sn)
	if err != nil {
		return nil, err
	}
	if !ok || !se.Event.D.Equal(d) {
		return nil, nil
	}
	return se.WitnessPrefixes(), nil
}

// Processor is the top-level ingest dispatcher, spec.md §4.3.
type Processor struct {
	Store     Store
	Validator validator.Validator
	Bus       *notify.Bus
	Log       logger.Logger

	states stateComputer
}

// New constructs a Processor wired for strategy (controller or witness),
// per spec.md §4.3's processing-strategy parameter.
func New(store Store, codec validator.Validator, bus *notify.Bus, log logger.Logger) *Processor {
	sc := stateComputer{store: store}
	codec.Delegation = delegationResolver{store: store}
	codec.Receipts = receiptCounter{store: store}
	return &Processor{Store: store, Validator: codec, Bus: bus, Log: log, states: sc}
}

// States exposes the Processor's StateComputer for callers (Controller,
// ReceiptEngine, query.Handler) that need current IdentifierState.
func (p *Processor) States() interface {
	Compute(identifier string) (state.IdentifierState, bool, error)
} {
	return p.states
}

// Accept appends se to the log and publishes KeyEventAdded. It is the one
// place both the main ingest path and every escrow's successful reprocess
// funnel through, satisfying escrow.Accepter and the ordering guarantee of
// spec.md §5: "append_event completes before KeyEventAdded is published".
func (p *Processor) Accept(se event.SignedEvent) error {
	added, err := p.Store.AppendEvent(se)
	if err != nil {
		return err
	}
	if !added {
		return nil // idempotent resubmission; no new notification
	}
	return p.Bus.Publish(notify.Notification{Kind: notify.KeyEventAdded, Event: se})
}

// Process dispatches an inbound Message per spec.md §4.3. Only structural
// and storage errors propagate to the caller (spec.md §7); recoverable
// outcomes are translated into Notifications and absorbed here.
func (p *Processor) Process(msg Message) error {
	switch msg.Kind {
	case MsgKeyEvent:
		return p.processKeyEvent(msg.Event)
	case MsgReceiptNontransferable:
		return p.processNontransferableReceipt(msg.NontransferableRcpt)
	case MsgReceiptTransferable:
		return p.processTransferableReceipt(msg.TransferableRcpt)
	case MsgReply:
		return p.processReply(msg.Reply)
	case MsgQuery:
		return fmt.Errorf("processor: queries are answered via query.Handler, not Process")
	default:
		return fmt.Errorf("processor: unknown message kind %d", msg.Kind)
	}
}

func (p *Processor) processKeyEvent(se event.SignedEvent) error {
	st, exists, err := p.states.Compute(se.Event.I)
	if err != nil {
		return err
	}
	res, err := p.Validator.Validate(st, exists, se)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case validator.Ok:
		return p.Accept(se)
	case validator.OutOfOrder:
		return p.Bus.Publish(notify.Notification{Kind: notify.OutOfOrder, Event: se})
	case validator.NotEnoughSignatures:
		return p.Bus.Publish(notify.Notification{Kind: notify.PartiallySigned, Event: se})
	case validator.NotEnoughReceipts:
		if p.Validator.Strategy == validator.StrategyWitness {
			// Witness-mode: witnesses accept into their own log regardless
			// of receipt gating (spec.md §4.3 witness-mode variant).
			return p.Accept(se)
		}
		return p.Bus.Publish(notify.Notification{Kind: notify.PartiallyWitnessed, Event: se})
	case validator.MissingDelegatingEvent:
		return p.Bus.Publish(notify.Notification{Kind: notify.MissingDelegatingEvent, Event: se})
	case validator.Duplicitous:
		return p.Bus.Publish(notify.Notification{Kind: notify.DuplicitousEvent, Event: se, Err: fmt.Errorf("duplicitous event at (%s,%d)", se.Event.I, se.Event.S)})
	case validator.SignatureInvalid, validator.IncorrectDigest, validator.PriorDigestMismatch, validator.NextKeysMismatch:
		// Terminal for this event: dropped with audit, not surfaced as a
		// process() failure (spec.md §7).
		p.Log.Infof("dropping event (%s,%d): %s: %s", se.Event.I, se.Event.S, res.Outcome, res.Detail)
		return nil
	default:
		return fmt.Errorf("processor: unhandled validation outcome %s", res.Outcome)
	}
}

func (p *Processor) processNontransferableReceipt(r event.NontransferableReceipt) error {
	se, ok, err := p.Store.GetEventAt(r.I, r.S)
	if err != nil {
		return err
	}
	if !ok || !se.Event.D.Equal(r.D) {
		return p.Bus.Publish(notify.Notification{Kind: notify.ReceiptOutOfOrder, ReceiptI: r.I, ReceiptS: r.S})
	}
	if err := p.Store.AppendReceipt(r.I, r); err != nil {
		return err
	}
	return p.Bus.Publish(notify.Notification{Kind: notify.ReceiptAccepted, ReceiptI: r.I, ReceiptS: r.S})
}

func (p *Processor) processTransferableReceipt(r event.TransferableReceipt) error {
	if r.ReceiptorSeal.Kind != event.SealEvent {
		return fmt.Errorf("processor: transferable receipt missing receiptor event seal")
	}
	st, exists, err := p.states.Compute(r.ReceiptorSeal.Prefix)
	if err != nil {
		return err
	}
	if !exists {
		return p.Bus.Publish(notify.Notification{Kind: notify.ReceiptOutOfOrder, ReceiptI: r.Receipted.Prefix, ReceiptS: r.Receipted.SN})
	}
	// The IndexedSignatures are not cryptographically verified, here or
	// elsewhere; only the receiptor's present signer indices are checked
	// against its own threshold.
	present := make([]int, 0, len(r.Signatures))
	for _, s := range r.Signatures {
		idx := s.Index.CurrentIndex()
		if idx < 0 || idx >= len(st.KeyConfig.Keys) {
			return fmt.Errorf("processor: transferable receipt signer index out of range")
		}
		present = append(present, idx)
	}
	okThresh, err := st.KeyConfig.Threshold.Satisfied(present)
	if err != nil {
		return err
	}
	if !okThresh {
		return p.Bus.Publish(notify.Notification{Kind: notify.ReceiptOutOfOrder, ReceiptI: r.Receipted.Prefix, ReceiptS: r.Receipted.SN})
	}
	return p.Bus.Publish(notify.Notification{Kind: notify.ReceiptAccepted, ReceiptI: r.Receipted.Prefix, ReceiptS: r.Receipted.SN})
}

func (p *Processor) processReply(r query.Reply) error {
	// Replies are accepted and discarded: no signature is checked, BADA is
	// not applied and nothing is stored. OOBI and end-role storage live in
	// oobi.Store, and the BADA comparison in query.BADAAccept; neither is
	// called from here.
	return nil
}
