package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-replay/internal/protocol"
	"github.com/annel0/mmo-replay/internal/protocol/nbo"
)

func twoRecordFile(t *testing.T, dir string) string {
	writeRecords(t, filepath.Join(dir, "two.rec"),
		Packet{Code: protocol.MsgPlayerUpdate, Timestamp: 0, Data: []byte("A")},
		Packet{Code: protocol.MsgShotBegin, Timestamp: 100_000, Data: []byte("B")},
	)
	return "two.rec"
}

func TestReplayEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	rp := f.rec.Replay
	name := twoRecordFile(t, f.dir)

	require.NoError(t, rp.Enable())
	require.NoError(t, rp.LoadFile(name))
	require.NoError(t, rp.Play())
	assert.True(t, rp.Playing())

	f.clock.Advance(150 * time.Millisecond)
	assert.False(t, rp.Tick(), "поток исчерпан")
	assert.False(t, rp.Playing())

	require.Len(t, f.transport.sent, 4)
	assert.Equal(t, sentMessage{player: 0, code: protocol.MsgPlayerUpdate, data: []byte("A")}, f.transport.sent[0])
	assert.Equal(t, sentMessage{player: 2, code: protocol.MsgPlayerUpdate, data: []byte("A")}, f.transport.sent[1])
	assert.Equal(t, sentMessage{player: 0, code: protocol.MsgShotBegin, data: []byte("B")}, f.transport.sent[2])
	assert.Equal(t, sentMessage{player: 2, code: protocol.MsgShotBegin, data: []byte("B")}, f.transport.sent[3])

	assert.Equal(t, []EventKind{EventReplayLoaded, EventReplayStarted, EventReplayFinished}, f.events.kinds())
	assert.Equal(t, NextTimeIdle, rp.NextTime())
}

func TestReplayTiming(t *testing.T) {
	f := newFixture(t, nil)
	rp := f.rec.Replay
	name := twoRecordFile(t, f.dir)

	assert.Equal(t, NextTimeIdle, rp.NextTime(), "вне режима воспроизведения")
	require.NoError(t, rp.Enable())
	require.NoError(t, rp.LoadFile(name))
	assert.Equal(t, NextTimeIdle, rp.NextTime(), "файл загружен, но не запущен")
	assert.False(t, rp.Tick())

	require.NoError(t, rp.Play())
	assert.InDelta(t, 0.0, rp.NextTime(), 1e-9)

	assert.True(t, rp.Tick())
	assert.Len(t, f.transport.sent, 2, "первая запись отправлена сразу")
	assert.InDelta(t, 0.1, rp.NextTime(), 1e-9)

	f.clock.Advance(40 * time.Millisecond)
	assert.True(t, rp.Tick())
	assert.Len(t, f.transport.sent, 2)
	assert.InDelta(t, 0.06, rp.NextTime(), 1e-9)

	require.NoError(t, rp.Skip(100*time.Millisecond))
	assert.InDelta(t, -0.04, rp.NextTime(), 1e-9, "пропуск вперёд делает запись просроченной")
	require.NoError(t, rp.Skip(-time.Second))
	assert.InDelta(t, 0.96, rp.NextTime(), 1e-9)
}

func TestReplaySkipBeforePlay(t *testing.T) {
	f := newFixture(t, nil)
	rp := f.rec.Replay
	name := twoRecordFile(t, f.dir)

	require.NoError(t, rp.Enable())
	require.NoError(t, rp.LoadFile(name))
	require.NoError(t, rp.Skip(100*time.Millisecond))
	assert.Equal(t, NextTimeIdle, rp.NextTime(), "до запуска время не идёт")

	require.NoError(t, rp.Play())
	assert.False(t, rp.Tick(), "обе записи уже наступили, поток исчерпан")
	assert.Len(t, f.transport.sent, 4, "пропуск до запуска применяется при Play")
	assert.Equal(t, NextTimeIdle, rp.NextTime())

	t.Run("Пропуски складываются и сбрасываются с файлом", func(t *testing.T) {
		f := newFixture(t, nil)
		rp := f.rec.Replay
		name := twoRecordFile(t, f.dir)
		require.NoError(t, rp.Enable())
		require.NoError(t, rp.LoadFile(name))
		require.NoError(t, rp.Skip(time.Second))
		require.NoError(t, rp.Skip(-950*time.Millisecond))
		require.NoError(t, rp.Play())
		assert.True(t, rp.Tick())
		assert.InDelta(t, 0.05, rp.NextTime(), 1e-9)

		require.NoError(t, rp.Reset())
		require.NoError(t, rp.LoadFile(name))
		require.NoError(t, rp.Play())
		assert.True(t, rp.Tick())
		assert.InDelta(t, 0.1, rp.NextTime(), 1e-9, "Reset забывает отложенный пропуск")
	})
}

func TestReplayStateChecks(t *testing.T) {
	f := newFixture(t, nil)
	rp := f.rec.Replay
	name := twoRecordFile(t, f.dir)

	assert.ErrorIs(t, rp.LoadFile(name), ErrNotActive, "нужен режим воспроизведения")
	require.NoError(t, rp.Enable())
	assert.ErrorIs(t, rp.Play(), ErrNotActive, "нет загруженного файла")
	assert.ErrorIs(t, rp.Skip(time.Second), ErrNotActive)
	assert.ErrorIs(t, rp.Stop(), ErrNotActive)

	require.NoError(t, rp.LoadFile(name))
	assert.ErrorIs(t, rp.LoadFile(name), ErrAlreadyLoaded)

	require.NoError(t, rp.Play())
	require.NoError(t, rp.Stop())
	assert.False(t, rp.Playing())
	assert.Equal(t, "two.rec", filepath.Base(rp.Progress().FileName))

	require.NoError(t, rp.Reset())
	assert.True(t, rp.Enabled())
	require.NoError(t, rp.LoadFile(name))

	rp.Disable()
	assert.False(t, rp.Enabled())
	assert.Equal(t, ModeIdle, f.rec.Mode())
	assert.ErrorIs(t, rp.Reset(), ErrNotActive)
}

func TestReplayLoadFailures(t *testing.T) {
	f := newFixture(t, nil)
	rp := f.rec.Replay
	require.NoError(t, rp.Enable())

	t.Run("Нет файла", func(t *testing.T) {
		assert.ErrorIs(t, rp.LoadFile("missing.rec"), ErrIO)
	})

	t.Run("Только заголовок", func(t *testing.T) {
		writeRecords(t, filepath.Join(f.dir, "empty.rec"))
		assert.ErrorIs(t, rp.LoadFile("empty.rec"), ErrNoData)
		assert.Empty(t, rp.Progress().FileName)
	})

	t.Run("Неверная сигнатура", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, "junk.rec"), make([]byte, 2048), 0644))
		assert.ErrorIs(t, rp.LoadFile("junk.rec"), ErrMalformedFile)
	})

	t.Run("Слишком длинный пакет сбрасывает загрузку", func(t *testing.T) {
		path := filepath.Join(f.dir, "oversize.rec")
		writeRecords(t, path, Packet{Code: protocol.MsgAlive, Data: []byte{1}})

		bad := make([]byte, RecordOverhead)
		buf := nbo.PackUint16(bad, 1)
		buf = nbo.PackUint16(buf, uint16(protocol.MsgAlive))
		nbo.PackInt32(buf, protocol.MaxPacketLen+100)
		fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		require.NoError(t, err)
		_, err = fh.Write(bad)
		require.NoError(t, err)
		require.NoError(t, fh.Close())

		assert.ErrorIs(t, rp.LoadFile("oversize.rec"), ErrMalformedFile)
		progress := rp.Progress()
		assert.True(t, progress.Enabled, "режим воспроизведения сохраняется")
		assert.Empty(t, progress.FileName)
		assert.Zero(t, progress.BufferedPackets)
	})

	t.Run("Оборванная последняя запись", func(t *testing.T) {
		path := filepath.Join(f.dir, "cut.rec")
		writeRecords(t, path,
			Packet{Code: protocol.MsgAlive, Data: []byte{1, 2, 3}},
			Packet{Code: protocol.MsgAlive, Data: []byte{4, 5, 6}},
		)
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.NoError(t, os.Truncate(path, info.Size()-2))

		require.NoError(t, rp.LoadFile("cut.rec"))
		assert.Equal(t, 1, rp.Progress().BufferedPackets)
		require.NoError(t, rp.Reset())
	})
}

func TestReplayReadAhead(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ReadAheadBytes = 1 })
	rp := f.rec.Replay

	var packets []Packet
	for i := 0; i < 5; i++ {
		packets = append(packets, Packet{Code: protocol.MsgPlayerUpdate, Timestamp: int64(i) * 1000, Data: []byte{byte(i)}})
	}
	writeRecords(t, filepath.Join(f.dir, "many.rec.zst"), packets...)

	require.NoError(t, rp.Enable())
	require.NoError(t, rp.LoadFile("many.rec.zst"))
	assert.Equal(t, 1, rp.Progress().BufferedPackets, "предзагрузка ограничена бюджетом")

	require.NoError(t, rp.Play())
	f.clock.Advance(time.Second)
	assert.False(t, rp.Tick())

	require.Len(t, f.transport.sent, 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, []byte{byte(i)}, f.transport.sent[i*2].data)
	}
	assert.Equal(t, 5, rp.Progress().Sent)
}

func TestReplayFromCapture(t *testing.T) {
	f := newFixture(t, nil)
	c := f.rec.Capture
	require.NoError(t, c.Start())
	f.clock.Advance(10 * time.Millisecond)
	require.NoError(t, c.AddPacket(protocol.MsgKilled, []byte{3}, false))
	_, err := c.SaveBuffer("session.rec")
	require.NoError(t, err)
	require.NoError(t, c.Stop())
	require.NoError(t, f.rec.Close())

	rp := f.rec.Replay
	require.NoError(t, rp.Enable())
	require.NoError(t, rp.LoadFile("session.rec"))
	require.NoError(t, rp.Play())
	f.clock.Advance(time.Second)
	rp.Tick()

	var codes []protocol.MessageCode
	for _, m := range f.transport.sent {
		if m.player == 0 {
			codes = append(codes, m.code)
		}
	}
	assert.Equal(t, append(append([]protocol.MessageCode{}, fullSnapshot...), protocol.MsgKilled), codes)
}

func TestReplayListFiles(t *testing.T) {
	f := newFixture(t, nil)
	twoRecordFile(t, f.dir)
	writeRecords(t, filepath.Join(f.dir, "b.rec.zst"), Packet{Code: protocol.MsgAlive})
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(f.dir, "sub"), 0755))

	files, err := f.rec.Replay.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "b.rec.zst", files[0].Name)
	assert.True(t, files[0].Valid)
	assert.True(t, files[0].Compressed)
	assert.Equal(t, "notes.txt", files[1].Name)
	assert.False(t, files[1].Valid)
	assert.Equal(t, "two.rec", files[2].Name)
	assert.Equal(t, "hash", files[2].WorldHash)
}
