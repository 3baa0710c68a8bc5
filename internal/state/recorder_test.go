// internal/state/recorder_test.go
package state

import (
	"context"
	"testing"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

func TestRecorderWritesTranscriptAndIndex(t *testing.T) {
	dir := t.TempDir()
	transcripts := NewTranscriptStore(dir)
	index := NewSessionIndexStore(dir)
	rec := NewRecorder(transcripts, index, 0)

	sessionID := types.NewSessionID()
	key := types.NewSessionKey("voice", "default")
	log := NewLog()
	log.Observe(rec.Hook(sessionID, key))
	log.Append(types.NewUserInput("open the browser"))
	log.Append(types.NewAssistantOutput("opening it"))
	rec.Close()

	ctx := context.Background()
	events, err := transcripts.Tail(ctx, sessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1].Text != "opening it" {
		t.Fatalf("unexpected transcript %+v", events)
	}

	sess, err := index.Get(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.SessionKey != key || sess.Events != 2 {
		t.Errorf("unexpected index entry %+v", sess)
	}
	if rec.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", rec.Dropped())
	}
}

func TestRecorderIgnoresAfterClose(t *testing.T) {
	dir := t.TempDir()
	transcripts := NewTranscriptStore(dir)
	rec := NewRecorder(transcripts, nil, 1)
	rec.Close()
	rec.Close()

	sessionID := types.NewSessionID()
	rec.Record(sessionID, "k", types.NewUserInput("late"))

	events, err := transcripts.Tail(context.Background(), sessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected nothing written after close, got %d", len(events))
	}
}
