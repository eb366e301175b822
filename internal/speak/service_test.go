package speak

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxalabs/voxa-core/internal/bus"
	"github.com/voxalabs/voxa-core/internal/config"
	"github.com/voxalabs/voxa-core/internal/natsserver"
	"github.com/voxalabs/voxa-core/internal/protocol"
)

func startTestBus(t *testing.T) *bus.Client {
	t.Helper()
	busCfg := config.BusConfig{Embedded: true, Port: -1, ConnectTimeout: 2000}
	embedded, err := natsserver.Start(busCfg, testLogger())
	if err != nil {
		t.Fatalf("failed to start embedded bus: %v", err)
	}
	t.Cleanup(embedded.Shutdown)

	busCfg.Servers = []string{embedded.ClientURL()}
	client, err := bus.Connect(context.Background(), busCfg, testLogger())
	if err != nil {
		t.Fatalf("failed to connect to bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// listenControlCounter tallies pause/resume messages on listen.control.
type listenControlCounter struct {
	mu      sync.Mutex
	pauses  int
	resumes int
}

func (c *listenControlCounter) subscribe(t *testing.T, client *bus.Client) {
	t.Helper()
	_, err := client.Conn().Subscribe(protocol.SubjectListenControl, func(m *nats.Msg) {
		var lc protocol.ListenControl
		if err := json.Unmarshal(m.Data, &lc); err != nil {
			return
		}
		c.mu.Lock()
		if lc.Pause {
			c.pauses++
		} else {
			c.resumes++
		}
		c.mu.Unlock()
	})
	if err != nil {
		t.Fatalf("failed to subscribe to listen control: %v", err)
	}
}

func (c *listenControlCounter) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauses, c.resumes
}

func TestOverlappingSessionsDoNotResumeListenerEarly(t *testing.T) {
	client := startTestBus(t)

	cfg := config.Default()
	cfg.Speak = testSpeakConfig()
	cfg.Synth = testSynthConfig()

	backend := &fakeSynth{}
	player := &orderPlayer{delay: 60 * time.Millisecond}

	svc := NewService(context.Background(), cfg, client, backend, player, nil, nil, testLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	defer svc.Close()

	counter := &listenControlCounter{}
	counter.subscribe(t, client)

	statuses := make(chan protocol.TurnStatus, 4)
	_, err := client.Conn().Subscribe(protocol.SubjectTurnDone, func(m *nats.Msg) {
		var st protocol.TurnStatus
		if err := json.Unmarshal(m.Data, &st); err != nil {
			return
		}
		statuses <- st
	})
	if err != nil {
		t.Fatalf("failed to subscribe to turn status: %v", err)
	}

	publishDelta := func(session, text string, final bool) {
		data, err := json.Marshal(protocol.TextDelta{SessionID: session, Text: text, Final: final})
		if err != nil {
			t.Fatalf("failed to marshal delta: %v", err)
		}
		if err := client.Conn().Publish(protocol.SubjectTextDelta, data); err != nil {
			t.Fatalf("failed to publish delta: %v", err)
		}
	}

	waitStatus := func(session string) protocol.TurnStatus {
		t.Helper()
		select {
		case st := <-statuses:
			if st.SessionID != session {
				t.Fatalf("expected turn status for %q, got %+v", session, st)
			}
			return st
		case <-time.After(5 * time.Second):
			t.Fatalf("turn for %q never completed", session)
			return protocol.TurnStatus{}
		}
	}

	// Session A starts a three-sentence turn; session B barges in while A's
	// clips are still playing. B's stream must not start a second turn,
	// overlap the player, or resume the listener early.
	publishDelta("session-a", "Alpha one. Alpha two. Alpha three. ", true)
	time.Sleep(50 * time.Millisecond)
	publishDelta("session-b", "Bravo intrusion. ", true)

	st := waitStatus("session-a")
	if st.Sentences != 3 || st.Failed != 0 || st.Aborted {
		t.Fatalf("unexpected turn status: %+v", st)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, resumes := counter.counts(); resumes >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	played := player.snapshot()
	want := []string{"Alpha one.", "Alpha two.", "Alpha three."}
	if len(played) != len(want) {
		t.Fatalf("expected only the first session's clips, got %v", played)
	}
	for i := range want {
		if played[i] != want[i] {
			t.Fatalf("playback order violated: %v", played)
		}
	}
	if pauses, resumes := counter.counts(); pauses != 1 || resumes != 1 {
		t.Fatalf("expected exactly one pause and one resume across the overlap, got %d/%d", pauses, resumes)
	}

	// With A finished, session B gets its own turn and its own gate cycle.
	publishDelta("session-b", "Bravo later. ", true)
	waitStatus("session-b")

	deadline = time.Now().Add(2 * time.Second)
	for {
		if _, resumes := counter.counts(); resumes >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	played = player.snapshot()
	if len(played) != 4 || played[3] != "Bravo later." {
		t.Fatalf("expected the second session to speak after the first completed, got %v", played)
	}
	if pauses, resumes := counter.counts(); pauses != 2 || resumes != 2 {
		t.Fatalf("expected a second pause/resume cycle, got %d/%d", pauses, resumes)
	}
}
