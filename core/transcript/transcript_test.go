package transcript

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAtMostOneAgentTurnInFlight(t *testing.T) {
	log := New()
	now := time.Now()

	if _, err := log.OpenAgentTurn(now); err != nil {
		t.Fatalf("failed to open agent turn: %v", err)
	}
	if _, err := log.OpenAgentTurn(now); !errors.Is(err, ErrAgentTurnOpen) {
		t.Fatalf("expected ErrAgentTurnOpen, got %v", err)
	}
	if _, err := log.Append(SpeakerAgent, "sneaky", now); !errors.Is(err, ErrAgentTurnAppend) {
		t.Fatalf("expected ErrAgentTurnAppend, got %v", err)
	}

	if _, err := log.CloseAgentTurn("", false, now); err != nil {
		t.Fatalf("failed to close agent turn: %v", err)
	}
	if _, err := log.CloseAgentTurn("", false, now); !errors.Is(err, ErrNoAgentTurn) {
		t.Fatalf("expected ErrNoAgentTurn, got %v", err)
	}
	if _, err := log.OpenAgentTurn(now); err != nil {
		t.Fatalf("expected a new agent turn after closing, got %v", err)
	}
}

func TestAgentTurnAccumulatesAndFreezes(t *testing.T) {
	log := New()
	started := time.Now()

	log.Append(SpeakerUser, "what time is it?", started)
	seq, _ := log.OpenAgentTurn(started)
	log.AppendAgentText("It is ", 320)
	log.AppendTool("inv-1", "get_time", "14:05", started)
	log.AppendAgentText("two o'clock", 640)

	ended := started.Add(time.Second)
	turn, err := log.CloseAgentTurn("", true, ended)
	if err != nil {
		t.Fatalf("failed to close agent turn: %v", err)
	}
	if turn.Seq != seq || turn.Text != "It is two o'clock" || turn.AudioBytes != 960 || !turn.Truncated {
		t.Fatalf("unexpected closed turn %+v", turn)
	}
	if turn.EndedAt == nil || !turn.EndedAt.Equal(ended) {
		t.Fatalf("expected end time %s, got %v", ended, turn.EndedAt)
	}
	if err := log.AppendAgentText("more", 0); !errors.Is(err, ErrNoAgentTurn) {
		t.Fatalf("expected frozen turn, got %v", err)
	}

	turns := log.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("expected three turns, got %d", len(turns))
	}
	expected := []Speaker{SpeakerUser, SpeakerAgent, SpeakerTool}
	for i, speaker := range expected {
		if turns[i].Speaker != speaker {
			t.Fatalf("expected turn %d to be %q, got %q", i, speaker, turns[i].Speaker)
		}
	}
	if turns[2].ToolInvocationID != "inv-1" || turns[2].ToolName != "get_time" {
		t.Fatalf("unexpected tool turn %+v", turns[2])
	}
}

func TestSequenceNumbersStrictlyIncreaseUnderConcurrency(t *testing.T) {
	log := New()
	log.OpenAgentTurn(time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.AppendTool("inv", "echo", "result", time.Now())
		}()
	}
	wg.Wait()
	log.CloseAgentTurn("done", false, time.Now())

	turns := log.Snapshot()
	if len(turns) != 51 {
		t.Fatalf("expected 51 turns, got %d", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].Seq <= turns[i-1].Seq {
			t.Fatalf("sequence not strictly increasing at %d: %d then %d", i, turns[i-1].Seq, turns[i].Seq)
		}
	}
	if log.LastSeq() != turns[len(turns)-1].Seq {
		t.Fatalf("expected last sequence %d, got %d", turns[len(turns)-1].Seq, log.LastSeq())
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	log := New()
	log.Append(SpeakerUser, "hello", time.Now())

	snapshot := log.Snapshot()
	snapshot[0].Text = "changed"
	*snapshot[0].EndedAt = time.Time{}

	fresh := log.Snapshot()
	if fresh[0].Text != "hello" || fresh[0].EndedAt.IsZero() {
		t.Fatalf("expected snapshot to be detached, got %+v", fresh[0])
	}
	if fresh[0].InFlight() {
		t.Fatalf("expected appended user turn to be ended")
	}
}
