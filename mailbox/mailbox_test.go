package mailbox

import (
	"testing"

	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/query"
)

func TestEnqueueAndPollRespectsLowWaterMark(t *testing.T) {
	s := NewStore()
	subject := "subject-1"

	r1 := event.NontransferableReceipt{I: subject, S: 0}
	r2 := event.NontransferableReceipt{I: subject, S: 1}
	if err := s.Enqueue(subject, string(TopicReceipt), r1); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(subject, string(TopicReceipt), r2); err != nil {
		t.Fatal(err)
	}

	resp := s.Poll(subject, query.MailboxTopics{Receipt: 0})
	if len(resp.Receipt) != 2 {
		t.Fatalf("expected both receipts polling from 0, got %d", len(resp.Receipt))
	}

	resp = s.Poll(subject, query.MailboxTopics{Receipt: 1})
	if len(resp.Receipt) != 1 || resp.Receipt[0].Index != 1 {
		t.Fatalf("expected only the second receipt polling from index 1, got %+v", resp.Receipt)
	}
}

func TestPollUnknownSubjectReturnsEmpty(t *testing.T) {
	s := NewStore()
	resp := s.Poll("never-seen", query.MailboxTopics{})
	if len(resp.Receipt) != 0 || len(resp.Multisig) != 0 || len(resp.Delegate) != 0 || len(resp.Reply) != 0 {
		t.Fatal("expected an empty response for a subject with no mailbox")
	}
}

func TestEnqueueEventUsesMultisigTopic(t *testing.T) {
	s := NewStore()
	subject := "subject-2"
	se := event.SignedEvent{Event: event.KeyEvent{I: subject, S: 0}}
	if err := s.EnqueueEvent(subject, TopicMultisig, se); err != nil {
		t.Fatal(err)
	}

	resp := s.Poll(subject, query.MailboxTopics{})
	if len(resp.Multisig) != 1 {
		t.Fatalf("expected one multisig entry, got %d", len(resp.Multisig))
	}
	if len(resp.Delegate) != 0 {
		t.Fatal("a multisig enqueue must not appear under the delegate topic")
	}
}

func TestEnqueueReplyUsesReplyTopic(t *testing.T) {
	s := NewStore()
	subject := "subject-3"
	if err := s.EnqueueReply(subject, query.Reply{}); err != nil {
		t.Fatal(err)
	}
	resp := s.Poll(subject, query.MailboxTopics{})
	if len(resp.Reply) != 1 {
		t.Fatalf("expected one reply entry, got %d", len(resp.Reply))
	}
}

func TestTopicsAreIndependentQueues(t *testing.T) {
	s := NewStore()
	subject := "subject-4"
	if err := s.Enqueue(subject, string(TopicReceipt), event.NontransferableReceipt{}); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueEvent(subject, TopicDelegate, event.SignedEvent{}); err != nil {
		t.Fatal(err)
	}
	resp := s.Poll(subject, query.MailboxTopics{})
	if len(resp.Receipt) != 1 || len(resp.Delegate) != 1 || len(resp.Multisig) != 0 {
		t.Fatal("expected each topic to track its own independent queue")
	}
}
