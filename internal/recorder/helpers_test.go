package recorder

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/protocol"
)

func TestMain(m *testing.M) {
	logging.GetLoggerManager().UseWriter(io.Discard, logging.ERROR)
	os.Exit(m.Run())
}

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeState struct {
	teams   []protocol.TeamScore
	flags   []protocol.FlagState
	players []protocol.PlayerState
}

func newFakeState() *fakeState {
	return &fakeState{
		teams: []protocol.TeamScore{{Team: 0, Size: 1, Won: 3}, {Team: 1, Size: 1, Lost: 3}},
		flags: []protocol.FlagState{
			{Index: 0, Abbrev: "R*", Status: protocol.FlagOnGround},
			{Index: 1, Abbrev: "G*", Status: protocol.FlagOnTank, Owner: 1},
			{Index: 2, Abbrev: "SW", Status: protocol.FlagOnGround},
		},
		players: []protocol.PlayerState{
			{Index: 0, Team: 0, CallSign: "alpha"},
			{Index: 1, Team: 1, CallSign: "bravo"},
		},
	}
}

func (s *fakeState) TeamScores() []protocol.TeamScore { return s.teams }
func (s *fakeState) Flags() []protocol.FlagState      { return s.flags }
func (s *fakeState) Players() []protocol.PlayerState  { return s.players }
func (s *fakeState) WorldHash() string                { return "abc123" }

type sentMessage struct {
	player int
	code   protocol.MessageCode
	data   []byte
}

type fakeTransport struct {
	mu      sync.Mutex
	players []int
	sent    []sentMessage
}

func (f *fakeTransport) PlayingPlayers() []int { return f.players }

func (f *fakeTransport) DirectMessage(idx int, code protocol.MessageCode, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{player: idx, code: code, data: append([]byte(nil), payload...)})
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnRecorderEvent(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	rec       *Recorder
	clock     *ManualClock
	state     *fakeState
	transport *fakeTransport
	events    *eventLog
	dir       string
}

func newFixture(t *testing.T, mutate func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{
		clock:     NewManualClock(testEpoch),
		state:     newFakeState(),
		transport: &fakeTransport{players: []int{0, 2}},
		events:    &eventLog{},
		dir:       t.TempDir(),
	}
	opts := Options{
		CaptureDir: f.dir,
		Clock:      f.clock,
		State:      f.state,
		Transport:  f.transport,
		Observer:   f.events,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.rec = New(opts)
	t.Cleanup(func() { f.rec.Close() })
	return f
}

// writeRecords пишет файл записи с заданными пакетами
func writeRecords(t *testing.T, path string, packets ...Packet) {
	t.Helper()
	w, err := CreateRecordFile(path, "hash")
	if err != nil {
		t.Fatalf("не удалось создать файл: %v", err)
	}
	for i := range packets {
		if err := w.Write(&packets[i]); err != nil {
			t.Fatalf("не удалось записать пакет: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("не удалось закрыть файл: %v", err)
	}
}

func readAll(t *testing.T, path string) []Packet {
	t.Helper()
	r, err := OpenRecordFile(path)
	if err != nil {
		t.Fatalf("не удалось открыть файл: %v", err)
	}
	defer r.Close()
	var out []Packet
	for {
		p, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ошибка чтения записи: %v", err)
		}
		out = append(out, p)
	}
}
