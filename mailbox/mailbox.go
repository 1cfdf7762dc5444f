// Package mailbox implements the MailboxStore of spec.md §4.6: per-subject,
// per-topic append-only FIFO queues that let a controller poll for receipts,
// multisig/delegation exchanges, and replies addressed to it without a
// listening socket of its own.
package mailbox

import (
	"sync"

	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/query"
)

// Topic names the four mailbox queues spec.md §4.6 defines per subject.
type Topic string

const (
	TopicReceipt  Topic = "receipt"
	TopicMultisig Topic = "multisig"
	TopicDelegate Topic = "delegate"
	TopicReply    Topic = "reply"
)

// slot is one entry in a topic queue: a monotonically increasing index plus
// whichever payload the topic carries.
type slot struct {
	index   uint64
	event   event.SignedEvent
	receipt event.NontransferableReceipt
	reply   query.Reply
}

type queue struct {
	entries []slot
	next    uint64
}

// Store is an in-memory MailboxStore, one queue set per (subject, topic).
// Like eventlog.MemStore it is a single mutex guarding simple maps; per
// spec.md §5 a production deployment would back this with durable storage,
// but the append-only, single-writer-per-topic shape carries over unchanged.
type Store struct {
	mu    sync.Mutex
	boxes map[string]map[Topic]*queue
}

func NewStore() *Store {
	return &Store{boxes: map[string]map[Topic]*queue{}}
}

func (s *Store) box(subject string) map[Topic]*queue {
	b, ok := s.boxes[subject]
	if !ok {
		b = map[Topic]*queue{}
		s.boxes[subject] = b
	}
	return b
}

// EnqueueEvent appends se (a multisig participation event or a forwarded
// delegation dip) to subject's topic queue.
func (s *Store) EnqueueEvent(subject string, topic Topic, se event.SignedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queueFor(subject, topic)
	q.entries = append(q.entries, slot{index: q.next, event: se})
	q.next++
	return nil
}

// Enqueue appends a produced receipt to subject's receipt topic, satisfying
// receipt.Mailbox.
func (s *Store) Enqueue(subject string, topic string, r event.NontransferableReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queueFor(subject, Topic(topic))
	q.entries = append(q.entries, slot{index: q.next, receipt: r})
	q.next++
	return nil
}

// EnqueueReply appends a signed Reply (KSN/OOBI/end-role) to subject's reply
// topic.
func (s *Store) EnqueueReply(subject string, r query.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queueFor(subject, TopicReply)
	q.entries = append(q.entries, slot{index: q.next, reply: r})
	q.next++
	return nil
}

func (s *Store) queueFor(subject string, topic Topic) *queue {
	b := s.box(subject)
	q, ok := b[topic]
	if !ok {
		q = &queue{}
		b[topic] = q
	}
	return q
}

// Poll answers a Mbx query: for each topic, every entry whose index is at or
// above the caller-supplied low-water mark, satisfying query.MailboxSource.
func (s *Store) Poll(subject string, marks query.MailboxTopics) query.MailboxResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.boxes[subject]
	return query.MailboxResponse{
		Receipt:  entriesFrom(b[TopicReceipt], marks.Receipt),
		Multisig: entriesFrom(b[TopicMultisig], marks.Multisig),
		Delegate: entriesFrom(b[TopicDelegate], marks.Delegate),
		Reply:    entriesFrom(b[TopicReply], marks.Reply),
	}
}

func entriesFrom(q *queue, from uint64) []query.MailboxEntry {
	if q == nil {
		return nil
	}
	var out []query.MailboxEntry
	for _, s := range q.entries {
		if s.index < from {
			continue
		}
		out = append(out, query.MailboxEntry{Index: s.index, Event: s.event, Receipt: s.receipt, Reply: s.reply})
	}
	return out
}
