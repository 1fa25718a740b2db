package recorder

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-replay/internal/protocol"
	"github.com/annel0/mmo-replay/internal/protocol/nbo"
)

func TestRecordRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, protocol.MaxPacketLen} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 7)
		}
		in := Packet{Synthetic: size == 1, Code: protocol.MsgShotBegin, PrevLen: 42, Timestamp: 1714564800123456, Data: data}

		raw := MarshalRecord(&in)
		require.Len(t, raw, RecordOverhead+size)

		out, err := ReadRecord(bytes.NewReader(raw))
		require.NoError(t, err, "размер %d", size)
		assert.Equal(t, in.Synthetic, out.Synthetic)
		assert.Equal(t, in.Code, out.Code)
		assert.Equal(t, in.PrevLen, out.PrevLen)
		assert.Equal(t, in.Timestamp, out.Timestamp)
		assert.Equal(t, in.Data, out.Data)
	}
}

func TestRecordLayout(t *testing.T) {
	p := Packet{Synthetic: true, Code: protocol.MsgTeamUpdate, PrevLen: 3, Timestamp: 0x0102030405060708, Data: []byte{0xAA}}
	raw := MarshalRecord(&p)
	want := []byte{
		0x00, 0x00, // синтетическая запись
		0x74, 0x75, // MsgTeamUpdate
		0, 0, 0, 1,
		0, 0, 0, 3,
		1, 2, 3, 4, 5, 6, 7, 8,
		0xAA,
	}
	assert.Equal(t, want, raw)

	p.Synthetic = false
	assert.Equal(t, []byte{0x00, 0x01}, MarshalRecord(&p)[:2])
}

func TestReadRecordErrors(t *testing.T) {
	t.Run("Пустой поток это EOF", func(t *testing.T) {
		_, err := ReadRecord(bytes.NewReader(nil))
		assert.Equal(t, io.EOF, err)
	})

	t.Run("Слишком длинный пакет", func(t *testing.T) {
		raw := make([]byte, RecordOverhead)
		buf := nbo.PackUint16(raw, 1)
		buf = nbo.PackUint16(buf, uint16(protocol.MsgMessage))
		nbo.PackInt32(buf, protocol.MaxPacketLen+1)
		_, err := ReadRecord(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrMalformedFile)
	})

	t.Run("Обрезанная запись", func(t *testing.T) {
		raw := MarshalRecord(&Packet{Code: protocol.MsgMessage, Data: []byte("hello")})
		_, err := ReadRecord(bytes.NewReader(raw[:len(raw)-2]))
		assert.ErrorIs(t, err, ErrMalformedFile)
		assert.True(t, errors.Is(err, errTruncated))

		_, err = ReadRecord(bytes.NewReader(raw[:5]))
		assert.ErrorIs(t, err, ErrMalformedFile)
	})
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, "deadbeef"))
	require.Equal(t, HeaderSize, buf.Len())
	assert.Equal(t, []byte("BZcr"), buf.Bytes()[:4])

	h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", h.WorldHash)
	assert.Equal(t, HeaderVersion, h.Version)

	t.Run("Неверная сигнатура", func(t *testing.T) {
		raw := append([]byte(nil), buf.Bytes()...)
		raw[0] = 'X'
		_, err := ReadHeader(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrMalformedFile)
	})

	t.Run("Неверная версия", func(t *testing.T) {
		raw := append([]byte(nil), buf.Bytes()...)
		nbo.PackUint32(raw[4:], 2)
		_, err := ReadHeader(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrMalformedFile)
	})

	t.Run("Короткий заголовок", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader(buf.Bytes()[:100]))
		assert.ErrorIs(t, err, ErrMalformedFile)
	})
}

func TestRecordFiles(t *testing.T) {
	for _, name := range []string{"plain.rec", "packed.rec.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			packets := []Packet{
				{Synthetic: true, Code: protocol.MsgTeamUpdate, Timestamp: 10, Data: []byte{1, 2, 3}},
				{Code: protocol.MsgPlayerUpdate, Timestamp: 20, Data: bytes.Repeat([]byte{9}, 300)},
				{Code: protocol.MsgAlive, Timestamp: 30},
			}
			writeRecords(t, path, packets...)

			got := readAll(t, path)
			require.Len(t, got, 3)
			assert.Equal(t, int32(0), got[0].PrevLen)
			assert.Equal(t, int32(3), got[1].PrevLen)
			assert.Equal(t, int32(300), got[2].PrevLen)
			for i := range packets {
				assert.Equal(t, packets[i].Code, got[i].Code)
				assert.Equal(t, packets[i].Timestamp, got[i].Timestamp)
				assert.Equal(t, len(packets[i].Data), len(got[i].Data))
			}

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if IsCompressed(name) {
				assert.NotEqual(t, []byte("BZcr"), raw[:4], "содержимое сжато")
			} else {
				assert.Equal(t, HeaderSize+3*RecordOverhead+303, len(raw))
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	p, err := ResolvePath("caps", "match.rec")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("caps", "match.rec"), p)

	for _, bad := range []string{"", "..", "../etc/passwd", "sub/file.rec"} {
		_, err := ResolvePath("caps", bad)
		assert.ErrorIs(t, err, ErrBadFileName, bad)
	}
}
