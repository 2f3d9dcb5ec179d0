package queue

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type fakeWriter struct {
	userIDs []uint64
	caseIDs []uint64
	types   []string
	msgs    []string
}

func (f *fakeWriter) Insert(ctx context.Context, userID, caseID uint64, eventType, message string) error {
	f.userIDs = append(f.userIDs, userID)
	f.caseIDs = append(f.caseIDs, caseID)
	f.types = append(f.types, eventType)
	f.msgs = append(f.msgs, message)
	return nil
}

func TestHandleMessageWritesNotification(t *testing.T) {
	ev := CaseEvent{
		Type: EventCaseSolved, CaseID: 12, IncidentID: 7, SubmittedBy: 99,
		Level: 2, Status: "SOLVED", OccurredAt: time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	w := &fakeWriter{}
	if err := handleMessage(body, w); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if len(w.userIDs) != 1 || w.userIDs[0] != 99 {
		t.Fatalf("notification user = %v, want [99]", w.userIDs)
	}
	if w.caseIDs[0] != 12 || w.types[0] != EventCaseSolved {
		t.Fatalf("notification = case %d type %s", w.caseIDs[0], w.types[0])
	}
	if w.msgs[0] == "" {
		t.Fatalf("notification message must not be empty")
	}
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	w := &fakeWriter{}
	if err := handleMessage([]byte("{not json"), w); err == nil {
		t.Fatalf("malformed body must error")
	}
	if err := handleMessage([]byte(`{"type":"case.solved"}`), w); err == nil {
		t.Fatalf("event without a submitter must error")
	}
	if len(w.userIDs) != 0 {
		t.Fatalf("rejected messages must not write notifications")
	}
}

func TestMessageForCoversAllEventTypes(t *testing.T) {
	types := []string{
		EventCaseCreated, EventCaseSolved, EventCaseRejected,
		EventCaseForwarded, EventCaseEscalated, EventCaseClosed,
	}
	seen := make(map[string]bool)
	for _, typ := range types {
		msg := MessageFor(CaseEvent{Type: typ})
		if msg == "" {
			t.Fatalf("no message for %s", typ)
		}
		seen[msg] = true
	}
	// Forwarded and auto-escalated read the same to the citizen; everything
	// else must be distinct.
	if len(seen) != len(types)-1 {
		t.Fatalf("expected %d distinct messages, got %d", len(types)-1, len(seen))
	}

	if msg := MessageFor(CaseEvent{Type: "case.something_new"}); !strings.Contains(msg, "case.something_new") {
		t.Fatalf("unknown event type must fall back to a generic message, got %q", msg)
	}
}
