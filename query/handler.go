package query

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/state"
)

var (
	ErrSignatureInvalid = errors.New("query: signature verification failed")
	ErrUnknownIdentifier = errors.New("query: unknown identifier")
)

// LogSource is the narrow eventlog.Store surface query routes need.
type LogSource interface {
	Range(i string, fromSN uint64, limit int) ([]event.SignedEvent, error)
}

// MailboxSource is the narrow mailbox.Store surface the Mbx route needs.
type MailboxSource interface {
	Poll(subject string, topics MailboxTopics) MailboxResponse
}

// StateSource supplies the querier's known key configuration, used to
// verify a query's signature before answering (spec.md §4.8: "a
// witness/watcher verifies the signature against its local knowledge of
// the querier's state before answering").
type StateSource interface {
	Compute(identifier string) (state.IdentifierState, bool, error)
}

// Handler answers Query messages, spec.md §4.8.
type Handler struct {
	Log     LogSource
	Mailbox MailboxSource
	States  StateSource
}

// Handle verifies q's signature against the querier's known state, then
// dispatches by route.
func (h Handler) Handle(q Query) (PossibleResponse, error) {
	st, exists, err := h.States.Compute(q.Querier)
	if err != nil {
		return PossibleResponse{}, err
	}
	if !exists {
		return PossibleResponse{}, fmt.Errorf("%w: %s", ErrUnknownIdentifier, q.Querier)
	}
	if err := verifyQuerySignature(st, q); err != nil {
		return PossibleResponse{}, err
	}

	switch q.Route {
	case RouteLogs:
		from := uint64(0)
		if q.FromSN != nil {
			from = *q.FromSN
		}
		events, err := h.Log.Range(q.Identifier, from, 0)
		if err != nil {
			return PossibleResponse{}, err
		}
		return PossibleResponse{Kind: ResponseKel, Kel: events}, nil

	case RouteKsn:
		subjSt, exists, err := h.States.Compute(q.Subject)
		if err != nil {
			return PossibleResponse{}, err
		}
		if !exists {
			return PossibleResponse{}, fmt.Errorf("%w: %s", ErrUnknownIdentifier, q.Subject)
		}
		ksn := KeyStateNotice{
			Subject:         q.Subject,
			SN:              subjSt.SN,
			Digest:          subjSt.LastEventDig.Qb64(),
			EstablishmentSN: subjSt.LastEstablish.SN,
		}
		return PossibleResponse{Kind: ResponseKsn, Ksn: Reply{Kind: ReplyKSN, KSN: ksn}}, nil

	case RouteMbx:
		resp := h.Mailbox.Poll(q.MailboxOf, q.Topics)
		return PossibleResponse{Kind: ResponseMbx, Mbx: resp}, nil

	default:
		return PossibleResponse{}, fmt.Errorf("query: unknown route %d", q.Route)
	}
}

func verifyQuerySignature(st state.IdentifierState, q Query) error {
	if len(st.KeyConfig.Keys) == 0 {
		return fmt.Errorf("%w: querier has no established keys", ErrSignatureInvalid)
	}
	msg := q.Bytes()
	for _, pk := range st.KeyConfig.Keys {
		if ed25519.Verify(pk, msg, q.Sig) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// BADAAccept implements spec.md §4.3's Best-Available-Data-Acceptance rule:
// a KSN reply is stored only if its signing identifier's state at the
// declared sn has at least as current an establishment event as any
// already-stored reply for the same (subject, signer).
func BADAAccept(existing, candidate Reply) bool {
	if existing.Kind != ReplyKSN || candidate.Kind != ReplyKSN {
		return true
	}
	return candidate.KSN.EstablishmentSN >= existing.KSN.EstablishmentSN
}
