package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-replay/internal/protocol"
)

func snapshotCodes(packets []Packet) []protocol.MessageCode {
	var codes []protocol.MessageCode
	for _, p := range packets {
		if p.Synthetic {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

func bufferPackets(c *Capture) []Packet {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	var out []Packet
	c.buffer.Each(func(p *Packet) bool {
		out = append(out, *p)
		return true
	})
	return out
}

var fullSnapshot = []protocol.MessageCode{
	protocol.MsgTeamUpdate, protocol.MsgFlagUpdate, protocol.MsgAddPlayer, protocol.MsgAddPlayer,
}

func TestCaptureStartStopKeepsSnapshot(t *testing.T) {
	t.Run("Буфер", func(t *testing.T) {
		f := newFixture(t, nil)
		c := f.rec.Capture

		require.NoError(t, c.Start())
		assert.Equal(t, ModeCapturingToBuffer, f.rec.Mode())
		require.NoError(t, c.Stop())
		assert.Equal(t, ModeIdle, f.rec.Mode())

		packets := bufferPackets(c)
		assert.Equal(t, fullSnapshot, snapshotCodes(packets))
		assert.True(t, packets[0].IsAnchor())

		teams, err := protocol.UnpackTeamUpdate(packets[0].Data)
		require.NoError(t, err)
		assert.Equal(t, f.state.teams, teams)

		summary, err := c.SaveBuffer("stopped.rec")
		require.NoError(t, err, "остановленный буфер всё ещё можно сохранить")
		assert.Equal(t, 4, summary.Packets)
		assert.Equal(t, fullSnapshot, snapshotCodes(readAll(t, summary.Path)))
	})

	t.Run("Файл", func(t *testing.T) {
		f := newFixture(t, nil)
		c := f.rec.Capture

		require.NoError(t, c.SaveFile("direct.rec"))
		assert.Equal(t, ModeCapturingToFile, f.rec.Mode())
		require.NoError(t, c.AddPacket(protocol.MsgPlayerUpdate, []byte{1, 2}, false))
		require.NoError(t, c.Stop())
		assert.Equal(t, ModeIdle, f.rec.Mode())
		assert.Empty(t, c.FileName(), "после остановки файл закрыт и забыт")

		packets := readAll(t, filepath.Join(f.dir, "direct.rec"))
		require.Len(t, packets, 5)
		assert.Equal(t, fullSnapshot, snapshotCodes(packets))
		assert.Equal(t, protocol.MsgPlayerUpdate, packets[4].Code)
		assert.False(t, packets[4].Synthetic)

		assert.Contains(t, f.events.kinds(), EventCaptureSaved)
	})
}

func TestCaptureStopWithoutStart(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.rec.Capture.Stop(), ErrNotActive)
	_, err := f.rec.Capture.SaveBuffer("x.rec")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestCaptureIgnoresPacketsWhenIdle(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.rec.Capture.AddPacket(protocol.MsgAlive, nil, false))
	assert.Zero(t, f.rec.Capture.Stats().BufferPackets)
}

func TestCaptureRejectsOversizePacket(t *testing.T) {
	f := newFixture(t, nil)
	c := f.rec.Capture
	require.NoError(t, c.Start())
	require.NoError(t, c.SaveFile("big.rec"))
	before := c.Stats().FilePackets

	err := c.AddPacket(protocol.MsgPlayerUpdate, make([]byte, protocol.MaxPacketLen+1), false)
	require.ErrorIs(t, err, ErrPacketTooLarge)
	assert.Equal(t, before, c.Stats().FilePackets, "слишком длинный пакет не попадает в файл")

	require.NoError(t, c.AddPacket(protocol.MsgPlayerUpdate, make([]byte, protocol.MaxPacketLen), false))
	require.NoError(t, c.Stop())

	rp := f.rec.Replay
	require.NoError(t, rp.Enable())
	require.NoError(t, rp.LoadFile("big.rec"), "файл остаётся загружаемым")
	assert.Equal(t, before+1, rp.Progress().Loaded)
}

func TestCapturePeriodicSnapshot(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.UpdateInterval = time.Second })
	c := f.rec.Capture
	require.NoError(t, c.Start())

	f.clock.Advance(500 * time.Millisecond)
	require.NoError(t, c.AddPacket(protocol.MsgShotBegin, []byte{1}, false))
	assert.Equal(t, 5, c.Stats().BufferPackets)

	f.clock.Advance(600 * time.Millisecond)
	require.NoError(t, c.AddPacket(protocol.MsgShotEnd, []byte{2}, false))

	packets := bufferPackets(c)
	require.Len(t, packets, 10)
	assert.True(t, packets[5].IsAnchor(), "новый снимок перед пакетом")
	assert.Equal(t, protocol.MsgShotEnd, packets[9].Code)
	assert.Equal(t, time.Duration(1100)*time.Millisecond, c.Stats().Span)
}

func TestCaptureEvictionBound(t *testing.T) {
	const budget = 2000
	f := newFixture(t, func(o *Options) {
		o.MaxBytes = budget
		o.UpdateInterval = time.Second
	})
	c := f.rec.Capture
	require.NoError(t, c.Start())

	payload := make([]byte, 100)
	for i := 0; i < 200; i++ {
		f.clock.Advance(70 * time.Millisecond)
		require.NoError(t, c.AddPacket(protocol.MsgPlayerUpdate, payload, false))

		packets := bufferPackets(c)
		total := 0
		anchors := 0
		for _, p := range packets {
			total += p.Size()
			if p.IsAnchor() {
				anchors++
			}
		}
		stats := c.Stats()
		require.Equal(t, total, stats.BufferBytes)
		require.GreaterOrEqual(t, anchors, 1, "в буфере всегда есть полный снимок")
		if total > budget {
			require.True(t, packets[0].IsAnchor(), "превышение допустимо только если хвост это снимок")
			require.Equal(t, 1, anchors, "удерживается только последний снимок")
		}
	}

	packets := bufferPackets(c)
	assert.Greater(t, packets[0].Timestamp, micros(testEpoch), "старые снимки вытеснены")
}

func TestCaptureSaveBufferLeavesBuffer(t *testing.T) {
	f := newFixture(t, nil)
	c := f.rec.Capture
	require.NoError(t, c.Start())
	require.NoError(t, c.AddPacket(protocol.MsgScore, []byte{7, 7}, false))

	before := c.Stats()
	summary, err := c.SaveBuffer("buffer.rec.zst")
	require.NoError(t, err)
	after := c.Stats()

	assert.Equal(t, before.BufferBytes, after.BufferBytes)
	assert.Equal(t, before.BufferPackets, after.BufferPackets)
	assert.True(t, after.Capturing)
	assert.Equal(t, HeaderSize+before.BufferBytes, summary.Bytes)

	got := readAll(t, summary.Path)
	require.Len(t, got, before.BufferPackets)
	assert.Equal(t, []byte{7, 7}, got[len(got)-1].Data)

	_, err = c.SaveBuffer("../escape.rec")
	assert.ErrorIs(t, err, ErrBadFileName)
}

func TestCaptureSettings(t *testing.T) {
	f := newFixture(t, nil)
	c := f.rec.Capture
	assert.Equal(t, DefaultMaxBytes, c.MaxBytes())
	assert.Equal(t, DefaultUpdateInterval, c.UpdateInterval())

	c.SetMaxBytes(3 * 1024 * 1024)
	c.SetUpdateInterval(30 * time.Second)
	require.NoError(t, c.SaveFile("a.rec"))
	require.NoError(t, c.Stop())

	assert.Equal(t, 3*1024*1024, c.MaxBytes(), "остановка не сбрасывает настройки")
	assert.Equal(t, 30*time.Second, c.UpdateInterval())
}

func TestModeConflict(t *testing.T) {
	t.Run("Воспроизведение во время записи", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.rec.Capture.Start())

		assert.ErrorIs(t, f.rec.Replay.Enable(), ErrModeConflict)
		assert.Equal(t, ModeCapturingToBuffer, f.rec.Mode())
		assert.True(t, f.rec.Capture.Enabled())
		assert.False(t, f.rec.Replay.Enabled())
	})

	t.Run("Запись во время воспроизведения", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.rec.Replay.Enable())

		assert.ErrorIs(t, f.rec.Capture.Start(), ErrModeConflict)
		assert.ErrorIs(t, f.rec.Capture.SaveFile("x.rec"), ErrModeConflict)
		assert.Equal(t, ModeReplay, f.rec.Mode())
		assert.False(t, f.rec.Capture.Enabled())
		assert.True(t, f.rec.Replay.Enabled())
	})
}

func TestCaptureSwitchBufferToFile(t *testing.T) {
	f := newFixture(t, nil)
	c := f.rec.Capture
	require.NoError(t, c.Start())
	require.NoError(t, c.AddPacket(protocol.MsgAlive, []byte{1}, false))

	require.NoError(t, c.SaveFile("switch.rec"))
	stats := c.Stats()
	assert.Equal(t, StraightToFile, stats.Mode)
	assert.Zero(t, stats.BufferPackets, "буфер освобождён при переходе в файл")
	assert.Equal(t, 4, stats.FilePackets)
}

func TestCaptureStartWhileCapturingToFile(t *testing.T) {
	f := newFixture(t, nil)
	c := f.rec.Capture
	require.NoError(t, c.Start())
	require.NoError(t, c.SaveFile("restart.rec"))
	written := c.Stats().FilePackets

	require.NoError(t, c.Start())
	stats := c.Stats()
	assert.Equal(t, BufferedCapture, stats.Mode, "повторный Start переводит запись в буфер")
	assert.True(t, c.Enabled())
	assert.Positive(t, stats.BufferPackets, "новый буфер начинается со снимка состояния")

	require.NoError(t, c.Stop())
	rp := f.rec.Replay
	require.NoError(t, rp.Enable())
	require.NoError(t, rp.LoadFile("restart.rec"), "файл закрыт корректно")
	assert.Equal(t, written, rp.Progress().Loaded)
}
