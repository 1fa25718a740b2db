package network

import (
	"errors"
	"fmt"
	"io"

	"github.com/annel0/mmo-replay/internal/protocol"
	"github.com/annel0/mmo-replay/internal/protocol/nbo"
)

// FrameHeaderLen длина (2) и код (2) перед полезной нагрузкой
const FrameHeaderLen = 4

// ErrFrameTooLarge полезная нагрузка длиннее protocol.MaxPacketLen
var ErrFrameTooLarge = errors.New("frame too large")

// EncodeFrame строит кадр len(2) code(2) payload
func EncodeFrame(code protocol.MessageCode, payload []byte) ([]byte, error) {
	if len(payload) > protocol.MaxPacketLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := make([]byte, FrameHeaderLen+len(payload))
	buf := nbo.PackUint16(frame, uint16(len(payload)))
	buf = nbo.PackUint16(buf, uint16(code))
	nbo.PackBytes(buf, payload)
	return frame, nil
}

// WriteFrame пишет один кадр целиком
func WriteFrame(w io.Writer, code protocol.MessageCode, payload []byte) error {
	frame, err := EncodeFrame(code, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame читает один кадр. Слишком длинный кадр означает рассинхронизацию
// потока, соединение после этого нужно закрыть.
func ReadFrame(r io.Reader) (protocol.MessageCode, []byte, error) {
	var header [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	length, buf := nbo.UnpackUint16(header[:])
	code, _ := nbo.UnpackUint16(buf)
	if int(length) > protocol.MaxPacketLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return protocol.MessageCode(code), payload, nil
}
