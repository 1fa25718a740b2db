// Package protocol описывает коды сообщений игрового протокола и упаковку
// состояний, из которых строится снимок мира при записи.
package protocol

import "fmt"

// MessageCode двухбайтовый код сообщения
type MessageCode uint16

// Максимальная длина полезной нагрузки одного сообщения
const MaxPacketLen = 1024

// Специальные адреса игроков
const (
	ServerPlayer = 253
	AllPlayers   = 254
)

const (
	MsgNull               MessageCode = 0x0000
	MsgAccept             MessageCode = 0x6163 // ac
	MsgAlive              MessageCode = 0x616c // al
	MsgAddPlayer          MessageCode = 0x6170 // ap
	MsgAudio              MessageCode = 0x6175 // au
	MsgCaptureFlag        MessageCode = 0x6366 // cf
	MsgDropFlag           MessageCode = 0x6466 // df
	MsgEnter              MessageCode = 0x656e // en
	MsgExit               MessageCode = 0x6578 // ex
	MsgFlagUpdate         MessageCode = 0x6675 // fu
	MsgGrabFlag           MessageCode = 0x6766 // gf
	MsgGMUpdate           MessageCode = 0x676d // gm
	MsgGetWorld           MessageCode = 0x6777 // gw
	MsgKilled             MessageCode = 0x6b6c // kl
	MsgMessage            MessageCode = 0x6d67 // mg
	MsgNewRabbit          MessageCode = 0x6e52 // nR
	MsgNegotiateFlags     MessageCode = 0x6e66 // nf
	MsgPause              MessageCode = 0x7061 // pa
	MsgPlayerUpdate       MessageCode = 0x7075 // pu
	MsgQueryGame          MessageCode = 0x7167 // qg
	MsgQueryPlayers       MessageCode = 0x7170 // qp
	MsgReject             MessageCode = 0x726a // rj
	MsgRemovePlayer       MessageCode = 0x7270 // rp
	MsgShotBegin          MessageCode = 0x7362 // sb
	MsgScore              MessageCode = 0x7363 // sc
	MsgScoreOver          MessageCode = 0x736f // so
	MsgShotEnd            MessageCode = 0x7365 // se
	MsgSuperKill          MessageCode = 0x736b // sk
	MsgSetVar             MessageCode = 0x7376 // sv
	MsgTimeUpdate         MessageCode = 0x746f // to
	MsgTeleport           MessageCode = 0x7470 // tp
	MsgTransferFlag       MessageCode = 0x7466 // tf
	MsgTeamUpdate         MessageCode = 0x7475 // tu
	MsgVideo              MessageCode = 0x7669 // vi
	MsgWantWHash          MessageCode = 0x7768 // wh
	MsgUDPLinkRequest     MessageCode = 0x6f66 // of
	MsgUDPLinkEstablished MessageCode = 0x6f67 // og
	MsgServerControl      MessageCode = 0x6f69 // oi
	MsgLagPing            MessageCode = 0x7069 // pi
)

var codeNames = map[MessageCode]string{
	MsgNull:               "MsgNull",
	MsgAccept:             "MsgAccept",
	MsgAlive:              "MsgAlive",
	MsgAddPlayer:          "MsgAddPlayer",
	MsgAudio:              "MsgAudio",
	MsgCaptureFlag:        "MsgCaptureFlag",
	MsgDropFlag:           "MsgDropFlag",
	MsgEnter:              "MsgEnter",
	MsgExit:               "MsgExit",
	MsgFlagUpdate:         "MsgFlagUpdate",
	MsgGrabFlag:           "MsgGrabFlag",
	MsgGMUpdate:           "MsgGMUpdate",
	MsgGetWorld:           "MsgGetWorld",
	MsgKilled:             "MsgKilled",
	MsgMessage:            "MsgMessage",
	MsgNewRabbit:          "MsgNewRabbit",
	MsgNegotiateFlags:     "MsgNegotiateFlags",
	MsgPause:              "MsgPause",
	MsgPlayerUpdate:       "MsgPlayerUpdate",
	MsgQueryGame:          "MsgQueryGame",
	MsgQueryPlayers:       "MsgQueryPlayers",
	MsgReject:             "MsgReject",
	MsgRemovePlayer:       "MsgRemovePlayer",
	MsgShotBegin:          "MsgShotBegin",
	MsgScore:              "MsgScore",
	MsgScoreOver:          "MsgScoreOver",
	MsgShotEnd:            "MsgShotEnd",
	MsgSuperKill:          "MsgSuperKill",
	MsgSetVar:             "MsgSetVar",
	MsgTimeUpdate:         "MsgTimeUpdate",
	MsgTeleport:           "MsgTeleport",
	MsgTransferFlag:       "MsgTransferFlag",
	MsgTeamUpdate:         "MsgTeamUpdate",
	MsgVideo:              "MsgVideo",
	MsgWantWHash:          "MsgWantWHash",
	MsgUDPLinkRequest:     "MsgUDPLinkRequest",
	MsgUDPLinkEstablished: "MsgUDPLinkEstablished",
	MsgServerControl:      "MsgServerControl",
	MsgLagPing:            "MsgLagPing",
}

// String возвращает отладочное имя кода
func (c MessageCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("MsgUnknown: 0x%04X", uint16(c))
}

// Known код входит в протокол
func (c MessageCode) Known() bool {
	_, ok := codeNames[c]
	return ok
}
