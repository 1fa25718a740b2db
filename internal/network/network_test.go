package network

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/commands"
	"github.com/annel0/mmo-replay/internal/game"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/protocol"
	"github.com/annel0/mmo-replay/internal/recorder"
)

func TestMain(m *testing.M) {
	logging.GetLoggerManager().UseWriter(io.Discard, logging.ERROR)
	os.Exit(m.Run())
}

const testGroups = "EVERYONE: talk privateMessage\n"

type fixture struct {
	srv   *Server
	rec   *recorder.Recorder
	state *game.State
	addr  string
	dir   string
}

func newFixture(t *testing.T, maxPlayers int, users, passwords string) *fixture {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if content != "" {
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		}
		return path
	}

	acc := access.NewManager(access.Options{
		GroupsFile:    write("groups.conf", testGroups),
		UsersFile:     write("users.db", users),
		PasswordFile:  write("passwd.db", passwords),
		AdminPassword: "letmein",
	})
	require.NoError(t, acc.Load())

	f := &fixture{state: game.NewState(4, "feedface"), dir: filepath.Join(dir, "rec")}
	require.NoError(t, os.MkdirAll(f.dir, 0o755))
	f.rec = recorder.New(recorder.Options{CaptureDir: f.dir, State: f.state})
	f.srv = NewServer(Options{
		MaxPlayers: maxPlayers,
		Tick:       5 * time.Millisecond,
		Recorder:   f.rec,
		Access:     acc,
		State:      f.state,
	})
	f.rec.SetTransport(f.srv)
	f.srv.SetDispatcher(commands.NewDispatcher(commands.Options{
		Recorder: f.rec,
		Access:   acc,
		Sessions: f.srv,
	}))
	f.srv.Start()
	addr, err := f.srv.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	f.addr = addr.String()

	t.Cleanup(func() {
		f.srv.Stop()
		f.rec.Close()
	})
	return f
}

type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialClient(t *testing.T, conn net.Conn) *testClient {
	t.Helper()
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (f *fixture) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", f.addr)
	require.NoError(t, err)
	return dialClient(t, conn)
}

func (tc *testClient) send(code protocol.MessageCode, payload []byte) {
	tc.t.Helper()
	require.NoError(tc.t, WriteFrame(tc.conn, code, payload))
}

func (tc *testClient) chat(to uint8, text string) {
	tc.send(protocol.MsgMessage, protocol.PackMessage(0, to, text))
}

// expect читает кадры, пропуская другие коды, пока не встретит code
func (tc *testClient) expect(code protocol.MessageCode) []byte {
	tc.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		tc.conn.SetReadDeadline(deadline)
		got, payload, err := ReadFrame(tc.conn)
		require.NoError(tc.t, err, "ожидали %s", code)
		if got == code {
			return payload
		}
	}
}

// expectText ждёт сообщение чата с текстом text
func (tc *testClient) expectText(text string) (from uint8) {
	tc.t.Helper()
	for {
		from, _, got, err := protocol.UnpackMessage(tc.expect(protocol.MsgMessage))
		require.NoError(tc.t, err)
		if got == text {
			return from
		}
	}
}

func (tc *testClient) enter(callSign string) int {
	tc.t.Helper()
	tc.send(protocol.MsgEnter, protocol.PackEnter(protocol.EnterRequest{Team: 1, CallSign: callSign}))
	payload := tc.expect(protocol.MsgAccept)
	require.Len(tc.t, payload, 1)
	return int(payload[0])
}

func TestFrameCodec(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, protocol.MsgAlive, []byte{1, 2, 3}))
	assert.Equal(t, []byte{0, 3, 0x61, 0x6c, 1, 2, 3}, buf.Bytes())

	code, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgAlive, code)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	_, err = EncodeFrame(protocol.MsgMessage, make([]byte, protocol.MaxPacketLen+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, _, err = ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0, 0}))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, _, err = ReadFrame(bytes.NewReader([]byte{0, 5, 0, 0, 1}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestSlowClientIsDisconnected(t *testing.T) {
	srv := NewServer(Options{})
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	c := newClient(0, local, srv)

	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, c.Send(protocol.MsgPlayerUpdate, []byte{byte(i)}))
	}
	assert.ErrorIs(t, c.Send(protocol.MsgPlayerUpdate, []byte{1}), ErrSendQueueFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.sendDrops))

	assert.ErrorIs(t, c.Send(protocol.MsgPlayerUpdate, []byte{2}), ErrClientClosed,
		"после переполнения клиент закрыт, а не получает поток с дырой")
	remote.SetReadDeadline(time.Now().Add(time.Second))
	_, err := remote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestEnterChatAndLeave(t *testing.T) {
	f := newFixture(t, 0, "", "")

	alpha := f.dial(t)
	assert.Equal(t, 0, alpha.enter("alpha"))
	alpha.expect(protocol.MsgTeamUpdate)
	self, err := protocol.UnpackAddPlayer(alpha.expect(protocol.MsgAddPlayer))
	require.NoError(t, err)
	assert.Equal(t, "alpha", self.CallSign)

	bravo := f.dial(t)
	assert.Equal(t, 1, bravo.enter("bravo"))
	added, err := protocol.UnpackAddPlayer(alpha.expect(protocol.MsgAddPlayer))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), added.Index)
	assert.Equal(t, []int{0, 1}, f.srv.PlayingPlayers())
	assert.Len(t, f.srv.Sessions(), 2)
	assert.True(t, f.state.IsPlaying(1))

	bravo.chat(protocol.AllPlayers, "hello")
	assert.Equal(t, uint8(1), alpha.expectText("hello"))

	bravo.chat(0, "psst")
	assert.Equal(t, uint8(1), alpha.expectText("psst"))

	alpha.send(protocol.MsgExit, nil)
	removed := bravo.expect(protocol.MsgRemovePlayer)
	assert.Equal(t, []byte{0}, removed)
	assert.Eventually(t, func() bool { return f.srv.Stats().Connections == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.state.IsPlaying(0))

	assert.ErrorIs(t, f.srv.DirectMessage(42, protocol.MsgAlive, nil), ErrUnknownClient)
}

func TestEnterRejections(t *testing.T) {
	f := newFixture(t, 2, "", "")

	first := f.dial(t)
	first.enter("dup")

	second := f.dial(t)
	second.send(protocol.MsgEnter, protocol.PackEnter(protocol.EnterRequest{Team: 1, CallSign: "DUP"}))
	code, _, err := protocol.UnpackReject(second.expect(protocol.MsgReject))
	require.NoError(t, err)
	assert.Equal(t, protocol.RejectRepeatCallsign, code)

	second.send(protocol.MsgEnter, protocol.PackEnter(protocol.EnterRequest{Team: 9, CallSign: "other"}))
	code, _, err = protocol.UnpackReject(second.expect(protocol.MsgReject))
	require.NoError(t, err)
	assert.Equal(t, protocol.RejectBadTeam, code)

	third := f.dial(t)
	code, reason, err := protocol.UnpackReject(third.expect(protocol.MsgReject))
	require.NoError(t, err)
	assert.Equal(t, protocol.RejectServerFull, code)
	assert.Equal(t, "Server is full", reason)
}

func TestIdentifyBeforeEnter(t *testing.T) {
	users := "PILOT\nVERIFIED\nrequireIdentify\n\n"
	f := newFixture(t, 0, users, "PILOT:secret\n")

	c := f.dial(t)
	c.send(protocol.MsgEnter, protocol.PackEnter(protocol.EnterRequest{Team: 1, CallSign: "pilot"}))
	code, _, err := protocol.UnpackReject(c.expect(protocol.MsgReject))
	require.NoError(t, err)
	assert.Equal(t, protocol.RejectBadCallsign, code)

	c.chat(protocol.ServerPlayer, "/identify secret")
	assert.Equal(t, uint8(protocol.ServerPlayer), c.expectText("Password Accepted, welcome back."))
	assert.Equal(t, 0, c.enter("pilot"))
}

func TestCaptureAndReplayOverTheWire(t *testing.T) {
	f := newFixture(t, 0, "", "")

	op := f.dial(t)
	op.enter("operator")
	op.chat(protocol.ServerPlayer, "/password letmein")
	op.expectText("You are now an administrator!")

	viewer := f.dial(t)
	viewer.enter("viewer")

	op.chat(protocol.ServerPlayer, "/capture start")
	op.expectText("Capture started")

	update := []byte{0, 1, 2, 3, 4, 5}
	op.send(protocol.MsgPlayerUpdate, update)
	assert.Equal(t, update, viewer.expect(protocol.MsgPlayerUpdate), "живой трафик рассылается")
	require.Eventually(t, func() bool {
		return f.rec.Capture.Stats().BufferPackets > 0
	}, 2*time.Second, 10*time.Millisecond)

	op.chat(protocol.ServerPlayer, "/capture save wire.rec")
	op.expectText("Captured buffer saved to: " + filepath.Join(f.dir, "wire.rec"))
	op.chat(protocol.ServerPlayer, "/capture stop")
	op.expectText("Capture stopped")

	op.chat(protocol.ServerPlayer, "/replay enable")
	op.expectText("Replay mode enabled")
	op.chat(protocol.ServerPlayer, "/replay load wire.rec")
	op.expectText("Loaded file: wire.rec")

	// в режиме воспроизведения живой чат не рассылается
	op.chat(protocol.AllPlayers, "live chatter")

	op.chat(protocol.ServerPlayer, "/replay play")
	op.expectText("Starting replay")

	viewer.expect(protocol.MsgTeamUpdate)
	assert.Equal(t, update, viewer.expect(protocol.MsgPlayerUpdate), "запись доходит до зрителя")
	assert.Eventually(t, func() bool { return !f.rec.Replay.Playing() }, 2*time.Second, 10*time.Millisecond)

	viewer.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	for {
		code, payload, err := ReadFrame(viewer.conn)
		if err != nil {
			break
		}
		if code == protocol.MsgMessage {
			_, _, text, _ := protocol.UnpackMessage(payload)
			assert.NotEqual(t, "live chatter", text)
		}
	}
}

func TestKCPListener(t *testing.T) {
	f := newFixture(t, 0, "", "")
	addr, err := f.srv.ListenKCP("127.0.0.1:0")
	require.NoError(t, err)

	conn, err := DialKCP(addr.String())
	require.NoError(t, err)
	c := dialClient(t, conn)
	assert.Equal(t, 0, c.enter("udp-pilot"))
	c.expect(protocol.MsgTeamUpdate)
}
