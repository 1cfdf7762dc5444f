// Package processor implements the top-level ingest dispatcher of spec.md
// §4.3: classify an inbound Message, invoke the Validator, and route to the
// EventLog or to an escrow via the NotificationBus.
package processor

import (
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/query"
)

// MessageKind selects which arm of Processor.Process handles a Message, per
// spec.md §9 "Receipts and exchanges are sibling variants of Message, not
// subclasses of event."
type MessageKind int

const (
	MsgKeyEvent MessageKind = iota
	MsgReceiptNontransferable
	MsgReceiptTransferable
	MsgReply
	MsgQuery
)

// Message is the tagged union Processor dispatches on.
type Message struct {
	Kind MessageKind

	Event               event.SignedEvent
	NontransferableRcpt event.NontransferableReceipt
	TransferableRcpt     event.TransferableReceipt
	Reply                query.Reply
	Query                query.Query
}
