package protocol

import (
	"github.com/annel0/mmo-replay/internal/protocol/nbo"
)

// PackMessage строит MsgMessage: отправитель, получатель, текст
func PackMessage(from, to uint8, text string) []byte {
	if len(text) > MaxPacketLen-2 {
		text = text[:MaxPacketLen-2]
	}
	out := make([]byte, 2+len(text))
	buf := nbo.PackUint8(out, from)
	buf = nbo.PackUint8(buf, to)
	nbo.PackBytes(buf, []byte(text))
	return out
}

func UnpackMessage(payload []byte) (from, to uint8, text string, err error) {
	if len(payload) < 2 {
		return 0, 0, "", ErrShortPayload
	}
	from, buf := nbo.UnpackUint8(payload)
	to, buf = nbo.UnpackUint8(buf)
	// клиенты могут завершать текст нулём
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return from, to, string(buf[:end]), nil
}

// EnterRequest тело MsgEnter
type EnterRequest struct {
	Type     uint16
	Team     uint16
	CallSign string
	Email    string
}

const EnterPLen = 2 + 2 + CallSignLen + EmailLen

func PackEnter(e EnterRequest) []byte {
	out := make([]byte, EnterPLen)
	buf := nbo.PackUint16(out, e.Type)
	buf = nbo.PackUint16(buf, e.Team)
	buf = nbo.PackString(buf, e.CallSign, CallSignLen)
	nbo.PackString(buf, e.Email, EmailLen)
	return out
}

func UnpackEnter(payload []byte) (EnterRequest, error) {
	if len(payload) < EnterPLen {
		return EnterRequest{}, ErrShortPayload
	}
	var e EnterRequest
	buf := payload
	e.Type, buf = nbo.UnpackUint16(buf)
	e.Team, buf = nbo.UnpackUint16(buf)
	e.CallSign, buf = nbo.UnpackString(buf, CallSignLen)
	e.Email, _ = nbo.UnpackString(buf, EmailLen)
	return e, nil
}
