package tel

import (
	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/forestrie/go-keri/event"
)

// Outcome is the TEL analogue of validator.Outcome (spec.md §4.9): a pure
// function over (prior registry state, candidate TEL event) checked in a
// fixed order.
type Outcome int

const (
	Ok Outcome = iota
	OutOfOrder
	Duplicitous
	IncorrectDigest
	MissingIssuer
	AnchorMismatch
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "Ok"
	case OutOfOrder:
		return "OutOfOrder"
	case Duplicitous:
		return "Duplicitous"
	case IncorrectDigest:
		return "IncorrectDigest"
	case MissingIssuer:
		return "MissingIssuer"
	case AnchorMismatch:
		return "AnchorMismatch"
	default:
		return "Unknown"
	}
}

type Result struct {
	Outcome Outcome
	Detail  string
}

func ok() Result                          { return Result{Outcome: Ok} }
func fail(o Outcome, detail string) Result { return Result{Outcome: o, Detail: detail} }

// KELAnchorSource resolves the KEL ixn (or establishment event) a TEL
// event's Source seal points at, to check spec.md §4.9's anchor rule: the
// ixn's own `a` field must carry a Seal::Registry matching this TEL event's
// (I, S, D).
type KELAnchorSource interface {
	EventAt(issuerPrefix string, sn uint64) (event.SignedEvent, bool, error)
}

// Validator validates one candidate TELEvent against its registry's prior
// state and the issuer's KEL.
type Validator struct {
	Codec  commoncbor.CBORCodec
	Anchor KELAnchorSource
}

// Validate implements the ordering: digest self-consistency -> sn binding
// -> issuer-KEL anchor resolution.
func (v Validator) Validate(prior State, priorExists bool, te TELEvent) (Result, error) {
	form, err := DerivationForm(v.Codec, te, te.D.Code)
	if err != nil {
		return Result{}, err
	}
	okDigest, err := te.D.VerifySource(form)
	if err != nil {
		return Result{}, err
	}
	if !okDigest {
		return fail(IncorrectDigest, "self-digest does not match derivation-form bytes"), nil
	}

	if te.T == Vcp {
		if te.S != 0 {
			return fail(OutOfOrder, "registry inception must have sn=0"), nil
		}
		if priorExists {
			return fail(Duplicitous, "vcp for already-established registry"), nil
		}
	} else {
		if !priorExists {
			return fail(OutOfOrder, "no prior registry state for non-vcp event"), nil
		}
		if te.S <= prior.Registry.SN {
			if te.D.Equal(prior.Registry.LastEventDig) && te.S == prior.Registry.SN {
				return ok(), nil
			}
			return fail(Duplicitous, "sn at or below accepted sn with differing digest"), nil
		}
		if te.S > prior.Registry.SN+1 {
			return fail(OutOfOrder, "sn skips ahead of accepted tip"), nil
		}
		if !te.P.IsZero() && !te.P.Equal(prior.Registry.LastEventDig) {
			return fail(OutOfOrder, "prior-digest binding does not match accepted tip"), nil
		}
	}

	if res, err := v.checkAnchor(te); err != nil || res.Outcome != Ok {
		return res, err
	}

	return ok(), nil
}

// checkAnchor resolves te.Source against the issuer's KEL and confirms the
// anchoring event's seals contain a matching Seal::Registry entry.
func (v Validator) checkAnchor(te TELEvent) (Result, error) {
	anchoring, found, err := v.Anchor.EventAt(te.IssuerPrefix, te.Source.SN)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return fail(MissingIssuer, "anchoring KEL event not yet accepted"), nil
	}
	if !anchoring.Event.D.Equal(te.Source.EventDigest) {
		return fail(MissingIssuer, "anchoring KEL event digest mismatch"), nil
	}
	for _, s := range anchoring.Event.Seals {
		if s.Kind == event.SealRegistry && s.Prefix == te.I && s.SN == te.S && s.EventDigest.Equal(te.D) {
			return ok(), nil
		}
	}
	return fail(AnchorMismatch, "anchoring KEL event carries no matching registry seal"), nil
}
