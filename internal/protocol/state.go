package protocol

import (
	"errors"

	"github.com/annel0/mmo-replay/internal/protocol/nbo"
)

// Размеры полей
const (
	CallSignLen = 32
	EmailLen    = 128
	// TeamPLen упакованная команда: номер + размер, победы, поражения
	TeamPLen = 1 + 3*2
	// FlagPLen упакованный флаг без индекса
	FlagPLen = 2 + 2 + 2 + 1 + 12 + 12 + 12 + 4 + 4 + 4
	// PlayerPLen упакованный игрок без индекса
	PlayerPLen = 5*2 + CallSignLen + EmailLen
)

// ErrShortPayload сообщение короче объявленной структуры
var ErrShortPayload = errors.New("payload too short")

// FlagStatus состояние флага
type FlagStatus uint16

const (
	FlagNoExist FlagStatus = iota
	FlagOnGround
	FlagOnTank
	FlagInAir
	FlagComing
	FlagGoing
)

// TeamScore счёт одной команды
type TeamScore struct {
	Team uint8
	Size uint16
	Won  uint16
	Lost uint16
}

func (t TeamScore) Pack(buf []byte) []byte {
	buf = nbo.PackUint8(buf, t.Team)
	buf = nbo.PackUint16(buf, t.Size)
	buf = nbo.PackUint16(buf, t.Won)
	return nbo.PackUint16(buf, t.Lost)
}

func UnpackTeamScore(buf []byte) (TeamScore, []byte) {
	var t TeamScore
	t.Team, buf = nbo.UnpackUint8(buf)
	t.Size, buf = nbo.UnpackUint16(buf)
	t.Won, buf = nbo.UnpackUint16(buf)
	t.Lost, buf = nbo.UnpackUint16(buf)
	return t, buf
}

// FlagState полное состояние флага
type FlagState struct {
	Index           uint16
	Abbrev          string // два символа
	Status          FlagStatus
	Endurance       uint16
	Owner           uint8
	Position        [3]float32
	LaunchPosition  [3]float32
	LandingPosition [3]float32
	FlightTime      float32
	FlightEnd       float32
	InitialVelocity float32
}

// Pack пишет флаг без индекса
func (f FlagState) Pack(buf []byte) []byte {
	buf = nbo.PackString(buf, f.Abbrev, 2)
	buf = nbo.PackUint16(buf, uint16(f.Status))
	buf = nbo.PackUint16(buf, f.Endurance)
	buf = nbo.PackUint8(buf, f.Owner)
	buf = nbo.PackVector(buf, f.Position)
	buf = nbo.PackVector(buf, f.LaunchPosition)
	buf = nbo.PackVector(buf, f.LandingPosition)
	buf = nbo.PackFloat32(buf, f.FlightTime)
	buf = nbo.PackFloat32(buf, f.FlightEnd)
	return nbo.PackFloat32(buf, f.InitialVelocity)
}

func UnpackFlagState(buf []byte) (FlagState, []byte) {
	var f FlagState
	var status uint16
	f.Abbrev, buf = nbo.UnpackString(buf, 2)
	status, buf = nbo.UnpackUint16(buf)
	f.Status = FlagStatus(status)
	f.Endurance, buf = nbo.UnpackUint16(buf)
	f.Owner, buf = nbo.UnpackUint8(buf)
	f.Position, buf = nbo.UnpackVector(buf)
	f.LaunchPosition, buf = nbo.UnpackVector(buf)
	f.LandingPosition, buf = nbo.UnpackVector(buf)
	f.FlightTime, buf = nbo.UnpackFloat32(buf)
	f.FlightEnd, buf = nbo.UnpackFloat32(buf)
	f.InitialVelocity, buf = nbo.UnpackFloat32(buf)
	return f, buf
}

// PlayerState данные MsgAddPlayer
type PlayerState struct {
	Index    uint8
	Type     uint16
	Team     uint16
	Wins     uint16
	Losses   uint16
	TKs      uint16
	CallSign string
	Email    string
}

// Pack пишет игрока без индекса
func (p PlayerState) Pack(buf []byte) []byte {
	buf = nbo.PackUint16(buf, p.Type)
	buf = nbo.PackUint16(buf, p.Team)
	buf = nbo.PackUint16(buf, p.Wins)
	buf = nbo.PackUint16(buf, p.Losses)
	buf = nbo.PackUint16(buf, p.TKs)
	buf = nbo.PackString(buf, p.CallSign, CallSignLen)
	return nbo.PackString(buf, p.Email, EmailLen)
}

func UnpackPlayerState(buf []byte) (PlayerState, []byte) {
	var p PlayerState
	p.Type, buf = nbo.UnpackUint16(buf)
	p.Team, buf = nbo.UnpackUint16(buf)
	p.Wins, buf = nbo.UnpackUint16(buf)
	p.Losses, buf = nbo.UnpackUint16(buf)
	p.TKs, buf = nbo.UnpackUint16(buf)
	p.CallSign, buf = nbo.UnpackString(buf, CallSignLen)
	p.Email, buf = nbo.UnpackString(buf, EmailLen)
	return p, buf
}

// PackTeamUpdate строит MsgTeamUpdate: число команд и их счёт
func PackTeamUpdate(teams []TeamScore) []byte {
	out := make([]byte, 1+len(teams)*TeamPLen)
	buf := nbo.PackUint8(out, uint8(len(teams)))
	for _, t := range teams {
		buf = t.Pack(buf)
	}
	return out
}

func UnpackTeamUpdate(payload []byte) ([]TeamScore, error) {
	if len(payload) < 1 {
		return nil, ErrShortPayload
	}
	count, buf := nbo.UnpackUint8(payload)
	if len(buf) < int(count)*TeamPLen {
		return nil, ErrShortPayload
	}
	teams := make([]TeamScore, count)
	for i := range teams {
		teams[i], buf = UnpackTeamScore(buf)
	}
	return teams, nil
}

// PackFlagUpdates строит одно или несколько MsgFlagUpdate так, чтобы ни одно
// не превысило MaxPacketLen. Несуществующие флаги пропускаются.
func PackFlagUpdates(flags []FlagState) [][]byte {
	var packets [][]byte
	chunk := make([]byte, MaxPacketLen)
	buf := chunk[2:]
	count := 0
	length := 2

	flush := func() {
		nbo.PackUint16(chunk, uint16(count))
		packets = append(packets, append([]byte(nil), chunk[:length]...))
		count = 0
		length = 2
		buf = chunk[2:]
	}

	for _, f := range flags {
		if f.Status == FlagNoExist {
			continue
		}
		if length+2+FlagPLen > MaxPacketLen-2*2 {
			flush()
		}
		buf = nbo.PackUint16(buf, f.Index)
		buf = f.Pack(buf)
		length += 2 + FlagPLen
		count++
	}
	if count > 0 {
		flush()
	}
	return packets
}

func UnpackFlagUpdate(payload []byte) ([]FlagState, error) {
	if len(payload) < 2 {
		return nil, ErrShortPayload
	}
	count, buf := nbo.UnpackUint16(payload)
	if len(buf) < int(count)*(2+FlagPLen) {
		return nil, ErrShortPayload
	}
	flags := make([]FlagState, count)
	for i := range flags {
		var idx uint16
		idx, buf = nbo.UnpackUint16(buf)
		flags[i], buf = UnpackFlagState(buf)
		flags[i].Index = idx
	}
	return flags, nil
}

// PackAddPlayer строит MsgAddPlayer: индекс игрока и его данные
func PackAddPlayer(p PlayerState) []byte {
	out := make([]byte, 1+PlayerPLen)
	buf := nbo.PackUint8(out, p.Index)
	p.Pack(buf)
	return out
}

func UnpackAddPlayer(payload []byte) (PlayerState, error) {
	if len(payload) < 1+PlayerPLen {
		return PlayerState{}, ErrShortPayload
	}
	idx, buf := nbo.UnpackUint8(payload)
	p, _ := UnpackPlayerState(buf)
	p.Index = idx
	return p, nil
}
