package tel

import (
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-keri/notify"
)

// stateComputer adapts a Store into the EventSource contract Compute needs.
type stateComputer struct{ store Store }

func (c stateComputer) Last(registryPrefix string) (TELEvent, bool, error) {
	return c.store.Last(registryPrefix)
}
func (c stateComputer) Range(registryPrefix string, fromSN uint64, limit int) ([]TELEvent, error) {
	return c.store.Range(registryPrefix, fromSN, limit)
}
func (c stateComputer) Compute(registryPrefix string) (State, bool, error) {
	return Compute(c, registryPrefix)
}

// Processor is the TEL analogue of processor.Processor (spec.md §4.9): same
// bus-and-escrow topology as the KEL processor, over TEL tables.
type Processor struct {
	Store     Store
	Validator Validator
	Bus       *notify.Bus
	Log       logger.Logger

	states  stateComputer
	missing *MissingIssuerEscrow
}

// New constructs a Processor wired with its missing-issuer escrow. It does
// not subscribe the KEL-anchor rescan trigger; see the note in the body.
func New(store Store, anchor KELAnchorSource, codec Validator, bus *notify.Bus, log logger.Logger) *Processor {
	codec.Anchor = anchor
	p := &Processor{
		Store:     store,
		Validator: codec,
		Bus:       bus,
		Log:       log,
		states:    stateComputer{store: store},
		missing:   NewMissingIssuerEscrow(nil),
	}

	bus.Subscribe(notify.TELMissingIssuer, func(n notify.Notification) error {
		te, ok, err := store.GetEventAt(n.TELRegistryI, n.TELSN)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		p.missing.Insert(te)
		return nil
	})

	// Rescan trigger: the KEL processor's own KeyEventAdded publication
	// re-enters here scoped to the issuer identifier, resolving any TEL
	// events that were waiting on that issuer's anchor. Callers wire this
	// by also subscribing KeyEventAdded to p.ReprocessIssuer in the shared
	// bus, mirroring escrow.Set's own subscription pattern.
	return p
}

// ReprocessIssuer re-validates every TEL event escrowed against issuerPrefix,
// called on a KeyEventAdded notification for that same prefix.
func (p *Processor) ReprocessIssuer(issuerPrefix string) error {
	for _, te := range p.missing.ForIssuer(issuerPrefix) {
		st, exists, err := p.states.Compute(te.I)
		if err != nil {
			return err
		}
		res, err := p.Validator.Validate(st, exists, te)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case Ok:
			p.missing.Remove(issuerPrefix, te.D.Qb64())
			if err := p.Accept(te); err != nil {
				return err
			}
		case IncorrectDigest, Duplicitous, AnchorMismatch:
			p.missing.Remove(issuerPrefix, te.D.Qb64())
		default:
			// still missing its issuer anchor, or out of order: leave it
			// for the next trigger or TTL expiry.
		}
	}
	return nil
}

// Accept appends te to the log and publishes TELEventAdded.
func (p *Processor) Accept(te TELEvent) error {
	added, err := p.Store.AppendEvent(te)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	return p.Bus.Publish(notify.Notification{
		Kind: notify.TELEventAdded, TELRegistryI: te.I, TELSN: te.S, TELSAID: te.CredentialSAID,
	})
}

// Process validates and dispatches one inbound TELEvent.
func (p *Processor) Process(te TELEvent) error {
	st, exists, err := p.states.Compute(te.I)
	if err != nil {
		return err
	}
	res, err := p.Validator.Validate(st, exists, te)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case Ok:
		return p.Accept(te)
	case MissingIssuer:
		p.missing.Insert(te)
		return p.Bus.Publish(notify.Notification{
			Kind: notify.TELMissingIssuer, TELRegistryI: te.I, TELSN: te.S, TELSAID: te.CredentialSAID,
		})
	case OutOfOrder, AnchorMismatch:
		p.Log.Infof("dropping tel event (%s,%d): %s: %s", te.I, te.S, res.Outcome, res.Detail)
		return nil
	case Duplicitous, IncorrectDigest:
		p.Log.Infof("dropping tel event (%s,%d): %s: %s", te.I, te.S, res.Outcome, res.Detail)
		return nil
	default:
		return fmt.Errorf("tel: unhandled validation outcome %s", res.Outcome)
	}
}
