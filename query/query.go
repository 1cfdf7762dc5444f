// Package query implements the Query/Reply surface of spec.md §4.8: signed
// query routes (Logs, Ksn, Mbx), their timestamped-and-signed envelope, and
// the reply variants a witness/watcher answers with.
package query

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forestrie/go-keri/event"
)

// RouteKind selects the query route.
type RouteKind int

const (
	RouteLogs RouteKind = iota
	RouteKsn
	RouteMbx
)

// MailboxTopics carries the per-topic low-water marks a Mbx query supplies,
// spec.md §4.6: `Mbx{i, pre, src, topics:{receipt:n_r, multisig:n_m,
// delegate:n_d, reply:n_p}}`.
type MailboxTopics struct {
	Receipt  uint64
	Multisig uint64
	Delegate uint64
	Reply    uint64
}

// Query is a timestamped, signed request. ID is a correlation identifier
// (spec.md §1c [NEW]: uuid, mirroring the teacher's use of uuid for blob
// naming).
type Query struct {
	ID        uuid.UUID
	Route     RouteKind
	Timestamp time.Time

	// RouteLogs
	Identifier string
	FromSN     *uint64 // nil means "from genesis"

	// RouteKsn
	Subject string

	// RouteMbx
	MailboxOf string // `i`
	Presenter string // `pre`: the polling identifier
	Source    string // `src`: the witness/watcher being polled
	Topics    MailboxTopics

	Querier string // signing identifier
	Sig     []byte
}

// Bytes returns the canonical signed-over form: every field except Sig.
func (q Query) Bytes() []byte {
	shadow := q
	shadow.Sig = nil
	from := "-"
	if shadow.FromSN != nil {
		from = fmt.Sprintf("%d", *shadow.FromSN)
	}
	return []byte(fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s|%s|%s|%d|%d|%d|%d|%s",
		shadow.ID.String(), shadow.Route, shadow.Timestamp.UTC().Format(time.RFC3339Nano),
		shadow.Identifier, from, shadow.Subject,
		shadow.MailboxOf, shadow.Presenter, shadow.Source,
		shadow.Topics.Receipt, shadow.Topics.Multisig, shadow.Topics.Delegate, shadow.Topics.Reply,
		shadow.Querier))
}

// ReplyKind selects the Reply payload.
type ReplyKind int

const (
	ReplyKSN ReplyKind = iota
	ReplyLocScheme
	ReplyEndRole
)

// LocationScheme is spec.md §6.4: `LocationScheme{eid, scheme, url}`.
type LocationScheme struct {
	EID    string
	Scheme string // "http" | "tcp"
	URL    string
}

// EndRoleKind enumerates the roles an EndRole reply may bind.
type EndRoleKind string

const (
	RoleWitness    EndRoleKind = "witness"
	RoleWatcher    EndRoleKind = "watcher"
	RoleController EndRoleKind = "controller"
	RoleMessagebox EndRoleKind = "messagebox"
)

// EndRole is spec.md §6.4: `EndRole{cid, role, eid}`.
type EndRole struct {
	CID  string
	Role EndRoleKind
	EID  string
}

// KeyStateNotice is the signed summary of an IdentifierState, spec.md §3.5 /
// §4.3 BADA.
type KeyStateNotice struct {
	Subject          string
	SN               uint64
	Digest           string
	EstablishmentSN  uint64 // sn of the signer's most recent establishment event at signing time
	Timestamp        time.Time
}

// Reply is a signed reply message: spec.md §4.3 handles Reply{KSN, OOBI,
// end-role} uniformly (verify signature; for KSN, apply BADA).
type Reply struct {
	Kind ReplyKind

	KSN       KeyStateNotice
	LocScheme LocationScheme
	EndRole   EndRole

	Signer    string // signing identifier's prefix
	Timestamp time.Time
	Sig       []byte
}

// PossibleResponseKind selects the variant a query response carries, spec.md
// §4.8: `PossibleResponse::{Kel, Mbx, Ksn}`.
type PossibleResponseKind int

const (
	ResponseKel PossibleResponseKind = iota
	ResponseMbx
	ResponseKsn
)

// PossibleResponse is the parsed answer to a Query.
type PossibleResponse struct {
	Kind PossibleResponseKind

	Kel []event.SignedEvent
	Mbx MailboxResponse
	Ksn Reply
}

// MailboxResponse carries the polled entries for each topic, already
// filtered to index >= the caller's low-water marks.
type MailboxResponse struct {
	Receipt  []MailboxEntry
	Multisig []MailboxEntry
	Delegate []MailboxEntry
	Reply    []MailboxEntry
}

// MailboxEntry is one slot in a mailbox topic queue (spec.md §4.6): a
// monotonic index plus whichever payload the topic carries. Exactly one of
// Event, Receipt or Reply is populated, matching the slot's topic.
type MailboxEntry struct {
	Index   uint64
	Event   event.SignedEvent
	Receipt event.NontransferableReceipt
	Reply   Reply
}
