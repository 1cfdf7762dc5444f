// Package receipt implements the ReceiptEngine role of spec.md §4.5: a
// witness signs the events it accepts into its own log and makes the
// resulting non-transferable receipt available to the controller.
package receipt

import (
	"crypto/ed25519"
	"crypto/rand"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	commoncose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/veraison/go-cose"

	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/notify"
)

// ReceiptTopic is the mailbox topic a witness enqueues its receipts under,
// spec.md §4.6.
const ReceiptTopic = "receipt"

// Store is the narrow eventlog.Store surface the engine needs to persist a
// produced receipt.
type Store interface {
	AppendReceipt(i string, r event.NontransferableReceipt) error
}

// Mailbox is the narrow mailbox.Store surface for delivering a produced
// receipt to its subject's receipt topic.
type Mailbox interface {
	Enqueue(subject, topic string, r event.NontransferableReceipt) error
}

// Engine is a witness's receipt production and delivery pipeline.
type Engine struct {
	WitnessPrefix string
	Signer        cose.Signer
	Codec         commoncbor.CBORCodec
	Store         Store
	Mailbox       Mailbox
	Bus           *notify.Bus
	Log           logger.Logger
}

// NewEngine builds a ReceiptEngine signing with priv under COSE EdDSA, the
// algorithm matching KERI's ed25519 controller keys (the teacher's
// RootSigner instead signs ECDSA massif roots; the signing skeleton -
// cose.Sign1Message + cose.Signer - is the part we keep, per spec.md §9's
// choice of COSE for witness receipts).
func NewEngine(
	witnessPrefix string,
	priv ed25519.PrivateKey,
	codec commoncbor.CBORCodec,
	store Store,
	mbox Mailbox,
	bus *notify.Bus,
	log logger.Logger,
) (*Engine, error) {
	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, priv)
	if err != nil {
		return nil, err
	}
	return &Engine{
		WitnessPrefix: witnessPrefix,
		Signer:        signer,
		Codec:         codec,
		Store:         store,
		Mailbox:       mbox,
		Bus:           bus,
		Log:           log,
	}, nil
}

// Subscribe registers Witness as the KeyEventAdded observer: every event
// this witness accepts into its own log is immediately receipted, spec.md
// §4.5 "a witness signs and publishes a receipt once it has accepted the
// event".
func (e *Engine) Subscribe(bus *notify.Bus) {
	bus.Subscribe(notify.KeyEventAdded, func(n notify.Notification) error {
		return e.Witness(n.Event)
	})
}

// Witness produces this witness's non-transferable receipt over se, persists
// it, publishes ReceiptAccepted, and enqueues it into the subject's receipt
// mailbox topic.
func (e *Engine) Witness(se event.SignedEvent) error {
	sig, err := e.sign(se.Event.D)
	if err != nil {
		return err
	}
	r := event.NontransferableReceipt{
		I: se.Event.I,
		S: se.Event.S,
		D: se.Event.D,
		Couples: []event.NontransferableCouple{
			{WitnessPrefix: e.WitnessPrefix, Sig: sig},
		},
	}
	if err := e.Store.AppendReceipt(r.I, r); err != nil {
		return err
	}
	if e.Mailbox != nil {
		if err := e.Mailbox.Enqueue(r.I, ReceiptTopic, r); err != nil {
			return err
		}
	}
	e.Log.Infof("witnessed (%s,%d) as %s", r.I, r.S, e.WitnessPrefix)
	return e.Bus.Publish(notify.Notification{Kind: notify.ReceiptAccepted, ReceiptI: r.I, ReceiptS: r.S})
}

// sign produces a detached COSE_Sign1 over d's raw digest bytes, keyed by
// the witness's own prefix.
func (e *Engine) sign(d digest.Digest) ([]byte, error) {
	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm: e.Signer.Algorithm(),
				cose.HeaderLabelKeyID:     []byte(e.WitnessPrefix),
			},
		},
		Payload: d.Bytes,
	}
	if err := msg.Sign(rand.Reader, nil, e.Signer); err != nil {
		return nil, err
	}
	encodable, err := commoncose.NewCoseSign1Message(&msg)
	if err != nil {
		return nil, err
	}
	return encodable.MarshalCBOR()
}
