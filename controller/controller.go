// Package controller implements the identity-holder orchestrator of
// spec.md §4.7: inception, rotation, interaction, witness notification,
// mailbox polling, receipt broadcasting and watcher management. Group
// (multisig) coordination and delegation approval flows are not implemented
// in this package.
package controller

import (
	"context"
	"crypto/ed25519"
	"fmt"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/identifier"
	"github.com/forestrie/go-keri/keys"
	"github.com/forestrie/go-keri/query"
	"github.com/forestrie/go-keri/state"
	"github.com/forestrie/go-keri/transport"
)

// Log is the narrow eventlog.Store surface Controller needs: local
// acceptance of its own emitted events and reads of its own KEL.
type Log interface {
	AppendEvent(se event.SignedEvent) (bool, error)
	GetEventAt(i string, sn uint64) (event.SignedEvent, bool, error)
	Range(i string, fromSN uint64, limit int) ([]event.SignedEvent, error)
	AppendReceipt(i string, r event.NontransferableReceipt) error
	Last(i string) (event.SignedEvent, bool, error)
}

// Signer abstracts the holder's private signing operation (spec.md §1c
// non-goal: "key-pair generation primitives" are out of scope; the caller
// supplies signing).
type Signer func(msg []byte) []byte

// broadcastKey identifies one (event-digest, witness-id, destination-id)
// triple for the receipt-broadcast dedup set, spec.md testable property 7.
type broadcastKey struct {
	digest string
	from   string
	to     string
}

// Controller is not safe for concurrent use from multiple goroutines
// without external synchronization, per spec.md §5.
type Controller struct {
	Identifier identifier.Identifier
	Codec      commoncbor.CBORCodec
	HashCode   digest.Code
	Log        Log
	Comm       transport.Communication
	Logger     logger.Logger

	sign Signer

	// marks tracks per-witness mailbox low-water marks.
	marks map[string]query.MailboxTopics

	// broadcasted is the already-sent receipt-triple set.
	broadcasted map[broadcastKey]struct{}

	// pending holds locally-signed, not-yet-witness-notified events.
	pending []event.SignedEvent
}

// New constructs a Controller for an already-established identifier
// (inception is performed via Incept/FinalizeIncept below, which produce
// their own Controller).
func New(id identifier.Identifier, sign Signer, codec commoncbor.CBORCodec, code digest.Code, log Log, comm transport.Communication, l logger.Logger) *Controller {
	return &Controller{
		Identifier:  id,
		Codec:       codec,
		HashCode:    code,
		Log:         log,
		Comm:        comm,
		Logger:      l,
		sign:        sign,
		marks:       map[string]query.MailboxTopics{},
		broadcasted: map[broadcastKey]struct{}{},
	}
}

// PendingEvent is an event built and ready to be signed by the identifier
// holder before FinalizeIncept/FinalizeEvent applies the signature.
type PendingEvent struct {
	Event event.KeyEvent
	Bytes []byte // the exact bytes the holder must sign
}

// Incept builds an icp event. For a self-addressing identifier, the
// dummy-prefix rule is extended one step further than a normal event: both
// `i` and `d` are blanked to same-length, code-sized placeholders before
// hashing, and both are set to the resulting digest afterward - the
// well-known KERI inception bootstrap (the identifier doesn't exist until
// its own inception event is hashed, so it can't appear, even placeholder,
// until that hash is known). For a basic identifier, `i` is the key itself
// and only `d` uses the placeholder.
func Incept(
	codec commoncbor.CBORCodec,
	code digest.Code,
	kind identifier.Kind,
	currentKeys []ed25519.PublicKey,
	currentThreshold keys.Threshold,
	nextKeys []ed25519.PublicKey,
	nextThreshold keys.Threshold,
	witnesses []string,
	witnessThreshold uint64,
) (PendingEvent, identifier.Identifier, error) {
	nextDigests, err := keys.CommitTo(code, nextKeys)
	if err != nil {
		return PendingEvent{}, identifier.Identifier{}, err
	}

	e := event.KeyEvent{
		V:         "KERI10CBOR000000_",
		T:         event.Icp,
		S:         0,
		Keys:      currentKeys,
		Threshold: currentThreshold,
		NextKeys:  keys.NextKeyCommitment{Digests: nextDigests, Threshold: nextThreshold},
		Witnesses: event.WitnessSet{Witnesses: witnesses, Threshold: witnessThreshold},
	}

	var id identifier.Identifier
	switch kind {
	case identifier.Basic:
		if len(currentKeys) != 1 {
			return PendingEvent{}, identifier.Identifier{}, fmt.Errorf("controller: basic identifier requires exactly one key, got %d", len(currentKeys))
		}
		id = identifier.NewBasic(currentKeys[0])
		e.I = id.Raw
		derived, err := event.Derive(codec, e, code)
		if err != nil {
			return PendingEvent{}, identifier.Identifier{}, err
		}
		e = derived
	case identifier.SelfAddressing:
		filler := digest.Digest{Code: code, Bytes: make([]byte, code.Size())}
		e.I = filler.Qb64()
		derived, err := event.Derive(codec, e, code)
		if err != nil {
			return PendingEvent{}, identifier.Identifier{}, err
		}
		derived.I = derived.D.Qb64()
		e = derived
		id = identifier.NewSelfAddressing(e.D)
	default:
		return PendingEvent{}, identifier.Identifier{}, fmt.Errorf("controller: unsupported identifier kind %d", kind)
	}

	msg, err := event.Bytes(codec, e)
	if err != nil {
		return PendingEvent{}, identifier.Identifier{}, err
	}
	return PendingEvent{Event: e, Bytes: msg}, id, nil
}

// FinalizeIncept applies sig to a PendingEvent produced by Incept, locally
// accepts the event, and returns a ready Controller handle.
func FinalizeIncept(
	pe PendingEvent,
	id identifier.Identifier,
	sig []byte,
	sign Signer,
	codec commoncbor.CBORCodec,
	code digest.Code,
	log Log,
	comm transport.Communication,
	l logger.Logger,
) (*Controller, error) {
	se := event.SignedEvent{
		Event:      pe.Event,
		Signatures: []event.IndexedSignature{{Index: event.NewCurrentOnly(0), Sig: sig}},
	}
	if _, err := log.AppendEvent(se); err != nil {
		return nil, err
	}
	c := New(id, sign, codec, code, log, comm, l)
	c.pending = append(c.pending, se)
	return c, nil
}

// currentState computes this controller's own IdentifierState from its log.
func (c *Controller) currentState() (state.IdentifierState, bool, error) {
	return state.Compute(rangeOnlySource{c.Log}, c.Identifier.Raw)
}

type rangeOnlySource struct{ log Log }

func (s rangeOnlySource) Last(i string) (event.SignedEvent, bool, error) { return s.log.Last(i) }
func (s rangeOnlySource) Range(i string, fromSN uint64, limit int) ([]event.SignedEvent, error) {
	return s.log.Range(i, fromSN, limit)
}

// Rotate builds a rot event, first confirming newCurrent satisfies the
// prior next-key commitment before any bytes are produced for signing,
// spec.md §4.7 "validates ... before emitting bytes".
func (c *Controller) Rotate(
	newCurrent []ed25519.PublicKey,
	newCurrentThreshold keys.Threshold,
	newNext []ed25519.PublicKey,
	newNextThreshold keys.Threshold,
	witnessesToAdd, witnessesToCut []string,
	witnessThreshold uint64,
) (PendingEvent, error) {
	st, exists, err := c.currentState()
	if err != nil {
		return PendingEvent{}, err
	}
	if !exists {
		return PendingEvent{}, fmt.Errorf("controller: cannot rotate, identifier %s has no accepted establishment event", c.Identifier.Raw)
	}
	if _, err := st.NextKeys.VerifyRotation(st.LastEventDig.Code, newCurrent); err != nil {
		return PendingEvent{}, fmt.Errorf("controller: new current keys do not satisfy prior next-key commitment: %w", err)
	}

	nextDigests, err := keys.CommitTo(c.HashCode, newNext)
	if err != nil {
		return PendingEvent{}, err
	}

	e := event.KeyEvent{
		V:          "KERI10CBOR000000_",
		T:          event.Rot,
		I:          c.Identifier.Raw,
		S:          st.SN + 1,
		P:          st.LastEventDig,
		Keys:       newCurrent,
		Threshold:  newCurrentThreshold,
		NextKeys:   keys.NextKeyCommitment{Digests: nextDigests, Threshold: newNextThreshold},
		WitnessAdd: witnessesToAdd,
		WitnessCut: witnessesToCut,
		Witnesses:  event.WitnessSet{Threshold: witnessThreshold},
	}
	derived, err := event.Derive(c.Codec, e, c.HashCode)
	if err != nil {
		return PendingEvent{}, err
	}
	msg, err := event.Bytes(c.Codec, derived)
	if err != nil {
		return PendingEvent{}, err
	}
	return PendingEvent{Event: derived, Bytes: msg}, nil
}

// Interact builds an ixn anchoring seals.
func (c *Controller) Interact(seals []event.Seal) (PendingEvent, error) {
	st, exists, err := c.currentState()
	if err != nil {
		return PendingEvent{}, err
	}
	if !exists {
		return PendingEvent{}, fmt.Errorf("controller: cannot interact, identifier %s has no accepted establishment event", c.Identifier.Raw)
	}
	e := event.KeyEvent{
		V:     "KERI10CBOR000000_",
		T:     event.Ixn,
		I:     c.Identifier.Raw,
		S:     st.SN + 1,
		P:     st.LastEventDig,
		Seals: seals,
	}
	derived, err := event.Derive(c.Codec, e, c.HashCode)
	if err != nil {
		return PendingEvent{}, err
	}
	msg, err := event.Bytes(c.Codec, derived)
	if err != nil {
		return PendingEvent{}, err
	}
	return PendingEvent{Event: derived, Bytes: msg}, nil
}

// FinalizeEvent signs pe with the controller's key at signerIndex, locally
// accepts it, and queues it for witness notification.
func (c *Controller) FinalizeEvent(pe PendingEvent, signerIndex int) (event.SignedEvent, error) {
	sig := c.sign(pe.Bytes)
	se := event.SignedEvent{
		Event:      pe.Event,
		Signatures: []event.IndexedSignature{{Index: event.NewCurrentOnly(uint16(signerIndex)), Sig: sig}},
	}
	if _, err := c.Log.AppendEvent(se); err != nil {
		return event.SignedEvent{}, err
	}
	c.pending = append(c.pending, se)
	return se, nil
}

// NotifyWitnesses sends every pending event whose own minimum signer index
// equals the minimum present index (the multisig leader-election rule of
// spec.md §4.7.1) to every witness in the event's witness set, then clears
// the pending queue. Non-leaders (an event whose present minimum index
// isn't this controller's own) are left queued for the actual leader. The
// frame carries se.Signatures alongside the event body (cesr.EncodeSignedEvent)
// so the receiving witness can actually run threshold verification on
// arrival, spec.md §2's Controller → … → Communication → witness path.
func (c *Controller) NotifyWitnesses(ctx context.Context, witnessAddr map[string]string) error {
	var remaining []event.SignedEvent
	for _, se := range c.pending {
		if !isLeader(se) {
			remaining = append(remaining, se)
			continue
		}
		msg, err := cesr.EncodeSignedEvent(c.Codec, se)
		if err != nil {
			return err
		}
		witnesses := se.Event.Witnesses.Witnesses
		for _, w := range witnesses {
			addr, ok := witnessAddr[w]
			if !ok {
				continue
			}
			if err := c.Comm.Process(ctx, addr, msg); err != nil {
				return err
			}
		}
	}
	c.pending = remaining
	return nil
}

// isLeader reports whether the minimum signer index among se's present
// signatures belongs to this call (i.e. se carries exactly the signatures
// known so far and the lowest one is the leader's) — for a single-signer
// identifier this is trivially true.
func isLeader(se event.SignedEvent) bool {
	if len(se.Signatures) == 0 {
		return false
	}
	min := se.Signatures[0].Index.CurrentIndex()
	for _, s := range se.Signatures[1:] {
		if idx := s.Index.CurrentIndex(); idx < min {
			min = idx
		}
	}
	return se.Signatures[0].Index.CurrentIndex() == min
}

// QueryMailbox builds one signed Mbx query per witness, using this
// controller's current per-witness low-water marks.
func (c *Controller) QueryMailbox(witnesses []string) []query.Query {
	qs := make([]query.Query, 0, len(witnesses))
	for _, w := range witnesses {
		qs = append(qs, query.Query{
			Route:     query.RouteMbx,
			MailboxOf: c.Identifier.Raw,
			Presenter: c.Identifier.Raw,
			Source:    w,
			Topics:    c.marks[w],
			Querier:   c.Identifier.Raw,
		})
	}
	return qs
}

// FinalizeQueryMailbox signs and sends q to its witness, promotes any new
// receipts into the log, and advances the low-water mark for that witness.
func (c *Controller) FinalizeQueryMailbox(ctx context.Context, q query.Query, witnessAddr string) (query.MailboxResponse, error) {
	q.Sig = c.sign(q.Bytes())
	body, err := c.Codec.MarshalCBOR(q)
	if err != nil {
		return query.MailboxResponse{}, err
	}
	respBytes, err := c.Comm.Query(ctx, witnessAddr, body)
	if err != nil {
		return query.MailboxResponse{}, err
	}
	var resp query.PossibleResponse
	if err := c.Codec.UnmarshalInto(respBytes, &resp); err != nil {
		return query.MailboxResponse{}, err
	}
	if resp.Kind != query.ResponseMbx {
		return query.MailboxResponse{}, fmt.Errorf("controller: expected Mbx response, got kind %d", resp.Kind)
	}

	for _, entry := range resp.Mbx.Receipt {
		if err := c.Log.AppendReceipt(c.Identifier.Raw, entry.Receipt); err != nil {
			return query.MailboxResponse{}, err
		}
	}

	marks := c.marks[q.Source]
	if n := highWaterOf(resp.Mbx.Receipt); n > marks.Receipt {
		marks.Receipt = n
	}
	if n := highWaterOf(resp.Mbx.Multisig); n > marks.Multisig {
		marks.Multisig = n
	}
	if n := highWaterOf(resp.Mbx.Delegate); n > marks.Delegate {
		marks.Delegate = n
	}
	if n := highWaterOf(resp.Mbx.Reply); n > marks.Reply {
		marks.Reply = n
	}
	c.marks[q.Source] = marks

	return resp.Mbx, nil
}

func highWaterOf(entries []query.MailboxEntry) uint64 {
	var max uint64
	first := true
	for _, e := range entries {
		if first || e.Index+1 > max {
			max = e.Index + 1
			first = false
		}
	}
	return max
}

// BroadcastReceipts sends every stored receipt of this controller's KEL to
// each destination witness, skipping (digest, source-witness, destination)
// triples already sent, and never sending a receipt back to the witness
// that authored it. Returns the count actually sent, spec.md testable
// property 7.
func (c *Controller) BroadcastReceipts(ctx context.Context, destinations map[string]string) (int, error) {
	events, err := c.Log.Range(c.Identifier.Raw, 0, 0)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, se := range events {
		for _, couple := range se.Receipts {
			for destID, destAddr := range destinations {
				if couple.WitnessPrefix == destID {
					continue // never echo a receipt back to its author
				}
				key := broadcastKey{digest: se.Event.D.Qb64(), from: couple.WitnessPrefix, to: destID}
				if _, done := c.broadcasted[key]; done {
					continue
				}
				r := event.NontransferableReceipt{
					I: se.Event.I, S: se.Event.S, D: se.Event.D,
					Couples: []event.NontransferableCouple{couple},
				}
				body, err := c.Codec.MarshalCBOR(r)
				if err != nil {
					return sent, err
				}
				if err := c.Comm.Forward(ctx, destAddr, body); err != nil {
					return sent, err
				}
				c.broadcasted[key] = struct{}{}
				sent++
			}
		}
	}
	return sent, nil
}

// AddWatcher emits a signed end-role reply binding (controller, watcher,
// role=watcher). The reply lives outside the KEL; sending it is the
// caller's responsibility (typically via Comm.Register against the
// watcher's own OOBI-resolved address).
func (c *Controller) AddWatcher(watcherID string) query.Reply {
	return c.endRoleReply(watcherID, query.RoleWatcher)
}

// RemoveWatcher emits the corresponding retraction: a signed EndRole reply
// for the same (controller, watcher) with an empty role. The reply carries
// no timestamp; oobi.Store.PutEndRole keeps only the most recently stored
// reply per signer, so storing the retraction replaces the binding.
func (c *Controller) RemoveWatcher(watcherID string) query.Reply {
	return c.endRoleReply(watcherID, "")
}

func (c *Controller) endRoleReply(watcherID string, role query.EndRoleKind) query.Reply {
	r := query.Reply{
		Kind:   query.ReplyEndRole,
		EndRole: query.EndRole{CID: c.Identifier.Raw, Role: role, EID: watcherID},
		Signer: c.Identifier.Raw,
	}
	body, _ := c.Codec.MarshalCBOR(r.EndRole)
	r.Sig = c.sign(body)
	return r
}
