package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/mmo-replay/internal/protocol"
	"github.com/annel0/mmo-replay/internal/protocol/nbo"
)

// Формат файла записи
const (
	HeaderMagic   uint32 = 0x425A6372 // "BZcr"
	HeaderVersion uint32 = 0x0001
	HeaderSize           = 1024
	WorldHashLen         = 64

	// CompressedExt файлы с этим расширением пишутся через zstd
	CompressedExt = ".zst"
)

// На диске синтетическая запись помечается нулём, обычная единицей
const (
	diskSynthetic uint16 = 0
	diskNormal    uint16 = 1
)

// Header заголовок файла записи
type Header struct {
	Magic     uint32
	Version   uint32
	WorldHash string
}

func (h Header) marshal() []byte {
	out := make([]byte, HeaderSize)
	buf := nbo.PackUint32(out, h.Magic)
	buf = nbo.PackUint32(buf, h.Version)
	nbo.PackString(buf, h.WorldHash, WorldHashLen)
	return out
}

// WriteHeader пишет 1024-байтовый заголовок
func WriteHeader(w io.Writer, worldHash string) error {
	h := Header{Magic: HeaderMagic, Version: HeaderVersion, WorldHash: worldHash}
	if _, err := w.Write(h.marshal()); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrIO, err)
	}
	return nil
}

// ReadHeader читает и проверяет заголовок
func ReadHeader(r io.Reader) (Header, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: short header", ErrMalformedFile)
		}
		return Header{}, fmt.Errorf("%w: read header: %w", ErrIO, err)
	}

	var h Header
	buf := raw
	h.Magic, buf = nbo.UnpackUint32(buf)
	h.Version, buf = nbo.UnpackUint32(buf)
	h.WorldHash, _ = nbo.UnpackString(buf, WorldHashLen)

	if h.Magic != HeaderMagic {
		return h, fmt.Errorf("%w: bad magic 0x%08X", ErrMalformedFile, h.Magic)
	}
	if h.Version != HeaderVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrMalformedFile, h.Version)
	}
	return h, nil
}

// MarshalRecord сериализует запись; prevLen пишется как есть
func MarshalRecord(p *Packet) []byte {
	out := make([]byte, RecordOverhead+len(p.Data))
	flag := diskNormal
	if p.Synthetic {
		flag = diskSynthetic
	}
	buf := nbo.PackUint16(out, flag)
	buf = nbo.PackUint16(buf, uint16(p.Code))
	buf = nbo.PackInt32(buf, int32(len(p.Data)))
	buf = nbo.PackInt32(buf, p.PrevLen)
	buf = nbo.PackInt64(buf, p.Timestamp)
	nbo.PackBytes(buf, p.Data)
	return out
}

// ReadRecord читает одну запись. io.EOF означает конец файла на границе записи.
func ReadRecord(r io.Reader) (Packet, error) {
	var head [RecordOverhead]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, fmt.Errorf("%w: %w in header", ErrMalformedFile, errTruncated)
		}
		return Packet{}, fmt.Errorf("%w: read record: %w", ErrIO, err)
	}

	var p Packet
	buf := head[:]
	flag, buf := nbo.UnpackUint16(buf)
	code, buf := nbo.UnpackUint16(buf)
	length, buf := nbo.UnpackInt32(buf)
	p.PrevLen, buf = nbo.UnpackInt32(buf)
	p.Timestamp, _ = nbo.UnpackInt64(buf)
	p.Synthetic = flag == diskSynthetic
	p.Code = protocol.MessageCode(code)

	if length < 0 || length > protocol.MaxPacketLen {
		return Packet{}, fmt.Errorf("%w: payload length %d exceeds %d", ErrMalformedFile, length, protocol.MaxPacketLen)
	}
	p.Data = make([]byte, length)
	if _, err := io.ReadFull(r, p.Data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, fmt.Errorf("%w: %w in payload", ErrMalformedFile, errTruncated)
		}
		return Packet{}, fmt.Errorf("%w: read payload: %w", ErrIO, err)
	}
	return p, nil
}

// RecordWriter последовательно пишет записи файла и ведёт prevLen
type RecordWriter struct {
	file    *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	prevLen int32
	bytes   int
	packets int
}

// CreateRecordFile создаёт файл и пишет заголовок
func CreateRecordFile(path, worldHash string) (*RecordWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	rw := &RecordWriter{file: f}
	var sink io.Writer = f
	if IsCompressed(path) {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: zstd encoder: %w", ErrIO, err)
		}
		rw.enc = enc
		sink = enc
	}
	rw.w = bufio.NewWriter(sink)

	if err := WriteHeader(rw.w, worldHash); err != nil {
		rw.Close()
		return nil, err
	}
	rw.bytes = HeaderSize
	return rw, nil
}

// Write дописывает запись, подставляя длину предыдущей
func (rw *RecordWriter) Write(p *Packet) error {
	rec := *p
	rec.PrevLen = rw.prevLen
	if _, err := rw.w.Write(MarshalRecord(&rec)); err != nil {
		return fmt.Errorf("%w: write record: %w", ErrIO, err)
	}
	rw.prevLen = int32(len(p.Data))
	rw.bytes += rec.Size()
	rw.packets++
	return nil
}

// Bytes байт записано вместе с заголовком
func (rw *RecordWriter) Bytes() int   { return rw.bytes }
func (rw *RecordWriter) Packets() int { return rw.packets }

// Flush сбрасывает буфер на диск (через zstd кадр, если есть)
func (rw *RecordWriter) Flush() error {
	if err := rw.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrIO, err)
	}
	if rw.enc != nil {
		if err := rw.enc.Flush(); err != nil {
			return fmt.Errorf("%w: zstd flush: %w", ErrIO, err)
		}
	}
	return nil
}

// Close сбрасывает данные и закрывает файл
func (rw *RecordWriter) Close() error {
	if rw.file == nil {
		return nil
	}
	var firstErr error
	if err := rw.w.Flush(); err != nil {
		firstErr = fmt.Errorf("%w: flush: %w", ErrIO, err)
	}
	if rw.enc != nil {
		if err := rw.enc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: zstd close: %w", ErrIO, err)
		}
	}
	if err := rw.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	rw.file = nil
	return firstErr
}

// RecordReader последовательно читает записи файла
type RecordReader struct {
	file    *os.File
	dec     *zstd.Decoder
	r       *bufio.Reader
	header  Header
	prevLen int32
	// Mismatches расхождения prevLen с фактической длиной предыдущей записи
	Mismatches int
}

// OpenRecordFile открывает файл и проверяет заголовок
func OpenRecordFile(path string) (*RecordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	rr := &RecordReader{file: f}
	var src io.Reader = f
	if IsCompressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: zstd decoder: %w", ErrMalformedFile, err)
		}
		rr.dec = dec
		src = dec
	}
	rr.r = bufio.NewReader(src)

	h, err := ReadHeader(rr.r)
	if err != nil {
		rr.Close()
		return nil, err
	}
	rr.header = h
	return rr, nil
}

func (rr *RecordReader) Header() Header { return rr.header }

// Next возвращает следующую запись или io.EOF
func (rr *RecordReader) Next() (Packet, error) {
	p, err := ReadRecord(rr.r)
	if err != nil {
		return p, err
	}
	if p.PrevLen != rr.prevLen {
		rr.Mismatches++
	}
	rr.prevLen = int32(len(p.Data))
	return p, nil
}

func (rr *RecordReader) Close() error {
	if rr.file == nil {
		return nil
	}
	if rr.dec != nil {
		rr.dec.Close()
	}
	err := rr.file.Close()
	rr.file = nil
	return err
}

// IsCompressed файл пишется через zstd
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}

// ResolvePath ограничивает имя файла каталогом dir
func ResolvePath(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrBadFileName, name)
	}
	if dir == "" {
		return name, nil
	}
	return filepath.Join(dir, name), nil
}
