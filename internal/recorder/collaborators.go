package recorder

import (
	"time"

	"github.com/annel0/mmo-replay/internal/protocol"
)

// StateSource текущее состояние игры для полного снимка
type StateSource interface {
	TeamScores() []protocol.TeamScore
	Flags() []protocol.FlagState
	// Players только полностью вошедшие в игру игроки
	Players() []protocol.PlayerState
	WorldHash() string
}

// Transport отправка сообщений подключённым клиентам
type Transport interface {
	// PlayingPlayers индексы полностью вошедших клиентов
	PlayingPlayers() []int
	DirectMessage(playerIndex int, code protocol.MessageCode, payload []byte) error
}

// EventKind тип события жизненного цикла записи
type EventKind string

const (
	EventCaptureStarted EventKind = "capture.started"
	EventCaptureStopped EventKind = "capture.stopped"
	EventCaptureSaved   EventKind = "capture.saved"
	EventReplayLoaded   EventKind = "replay.loaded"
	EventReplayStarted  EventKind = "replay.started"
	EventReplayFinished EventKind = "replay.finished"
)

// Event уведомление наблюдателю
type Event struct {
	Kind      EventKind
	Mode      CaptureMode
	File      string
	WorldHash string
	Bytes     int
	Packets   int
	StartedAt time.Time
	At        time.Time
}

// Observer получает события под блокировкой рекордера и не должен вызывать его методы
type Observer interface {
	OnRecorderEvent(ev Event)
}

// ObserverFunc адаптер функции к Observer
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnRecorderEvent(ev Event) { f(ev) }
