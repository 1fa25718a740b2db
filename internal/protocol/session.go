package protocol

import (
	"github.com/annel0/mmo-replay/internal/protocol/nbo"
)

// Причины отказа во входе (MsgReject)
const (
	RejectBadRequest     uint16 = 0x0000
	RejectBadTeam        uint16 = 0x0001
	RejectBadType        uint16 = 0x0002
	RejectTeamFull       uint16 = 0x0004
	RejectServerFull     uint16 = 0x0005
	RejectBadCallsign    uint16 = 0x0006
	RejectRepeatCallsign uint16 = 0x0007
)

// PackAccept тело MsgAccept: индекс, под которым игрок вошёл
func PackAccept(index uint8) []byte {
	out := make([]byte, 1)
	nbo.PackUint8(out, index)
	return out
}

// PackReject тело MsgReject: код причины и текст для игрока
func PackReject(code uint16, reason string) []byte {
	if len(reason) > MaxPacketLen-2 {
		reason = reason[:MaxPacketLen-2]
	}
	out := make([]byte, 2+len(reason))
	buf := nbo.PackUint16(out, code)
	nbo.PackBytes(buf, []byte(reason))
	return out
}

func UnpackReject(payload []byte) (uint16, string, error) {
	if len(payload) < 2 {
		return 0, "", ErrShortPayload
	}
	code, buf := nbo.UnpackUint16(payload)
	return code, string(buf), nil
}

// PackRemovePlayer тело MsgRemovePlayer
func PackRemovePlayer(index uint8) []byte {
	out := make([]byte, 1)
	nbo.PackUint8(out, index)
	return out
}

// UnpackKilled начало MsgKilled: жертва и убийца
func UnpackKilled(payload []byte) (victim, killer uint8, err error) {
	if len(payload) < 2 {
		return 0, 0, ErrShortPayload
	}
	victim, buf := nbo.UnpackUint8(payload)
	killer, _ = nbo.UnpackUint8(buf)
	return victim, killer, nil
}

// UnpackGrabFlag начало MsgGrabFlag: игрок и индекс флага
func UnpackGrabFlag(payload []byte) (player uint8, flag uint16, err error) {
	if len(payload) < 3 {
		return 0, 0, ErrShortPayload
	}
	player, buf := nbo.UnpackUint8(payload)
	flag, _ = nbo.UnpackUint16(buf)
	return player, flag, nil
}
