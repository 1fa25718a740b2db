// Package game хранит минимальное состояние матча, необходимое для снимков
// записи: счёт команд, флаги и вошедших игроков.
package game

import (
	"errors"
	"sort"
	"sync"

	"github.com/annel0/mmo-replay/internal/protocol"
)

// ErrUnknownPlayer игрок с таким индексом не подключён
var ErrUnknownPlayer = errors.New("unknown player")

// teamFlags флаги команд в порядке номеров команд (0 - rogue без флага)
var teamFlags = []string{"", "R*", "G*", "B*", "P*"}

// State состояние матча. Безопасно для конкурентного использования.
type State struct {
	mu        sync.RWMutex
	worldHash string
	teams     []protocol.TeamScore
	flags     []protocol.FlagState
	players   map[uint8]*protocol.PlayerState
	playing   map[uint8]bool
}

// NewState создаёт матч с numTeams командами и командными флагами
func NewState(numTeams int, worldHash string) *State {
	if numTeams <= 0 {
		numTeams = 1
	}
	s := &State{
		worldHash: worldHash,
		teams:     make([]protocol.TeamScore, numTeams),
		players:   make(map[uint8]*protocol.PlayerState),
		playing:   make(map[uint8]bool),
	}
	for i := range s.teams {
		s.teams[i].Team = uint8(i)
	}
	for i := 1; i < numTeams && i < len(teamFlags); i++ {
		s.flags = append(s.flags, protocol.FlagState{
			Index:  uint16(len(s.flags)),
			Abbrev: teamFlags[i],
			Status: protocol.FlagOnGround,
		})
	}
	return s
}

// AddPlayer регистрирует подключившегося игрока; в снимки он попадает после SetPlaying
func (s *State) AddPlayer(p protocol.PlayerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.players[p.Index] = &cp
}

// SetPlaying отмечает, что игрок полностью вошёл в игру
func (s *State) SetPlaying(index uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[index]
	if !ok {
		return ErrUnknownPlayer
	}
	if s.playing[index] {
		return nil
	}
	s.playing[index] = true
	if int(p.Team) < len(s.teams) {
		s.teams[p.Team].Size++
	}
	return nil
}

// RemovePlayer удаляет игрока и освобождает захваченный им флаг
func (s *State) RemovePlayer(index uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[index]
	if !ok {
		return
	}
	if s.playing[index] && int(p.Team) < len(s.teams) && s.teams[p.Team].Size > 0 {
		s.teams[p.Team].Size--
	}
	for i := range s.flags {
		if s.flags[i].Status == protocol.FlagOnTank && s.flags[i].Owner == index {
			s.flags[i].Status = protocol.FlagOnGround
		}
	}
	delete(s.players, index)
	delete(s.playing, index)
}

// Player возвращает копию состояния игрока
func (s *State) Player(index uint8) (protocol.PlayerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[index]
	if !ok {
		return protocol.PlayerState{}, false
	}
	return *p, true
}

// IsPlaying вошёл ли игрок в игру
func (s *State) IsPlaying(index uint8) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing[index]
}

// GrabFlag отдаёт флаг игроку
func (s *State) GrabFlag(flag uint16, player uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(flag) >= len(s.flags) {
		return errors.New("unknown flag")
	}
	if _, ok := s.players[player]; !ok {
		return ErrUnknownPlayer
	}
	s.flags[flag].Status = protocol.FlagOnTank
	s.flags[flag].Owner = player
	return nil
}

// RecordKill обновляет счёт игроков и команд после уничтожения
func (s *State) RecordKill(killer, victim uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, kok := s.players[killer]
	v, vok := s.players[victim]
	if vok {
		v.Losses++
	}
	if !kok || killer == victim {
		return
	}
	if vok && k.Team == v.Team && k.Team != 0 {
		k.TKs++
		return
	}
	k.Wins++
	if int(k.Team) < len(s.teams) {
		s.teams[k.Team].Won++
	}
	if vok && int(v.Team) < len(s.teams) {
		s.teams[v.Team].Lost++
	}
}

// TeamScores реализует recorder.StateSource
func (s *State) TeamScores() []protocol.TeamScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.TeamScore(nil), s.teams...)
}

// Flags реализует recorder.StateSource
func (s *State) Flags() []protocol.FlagState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.FlagState(nil), s.flags...)
}

// Players возвращает только вошедших игроков в порядке индексов
func (s *State) Players() []protocol.PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.PlayerState, 0, len(s.playing))
	for idx := range s.playing {
		out = append(out, *s.players[idx])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (s *State) WorldHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worldHash
}

// SetWorldHash меняет хеш мира (новая карта)
func (s *State) SetWorldHash(hash string) {
	s.mu.Lock()
	s.worldHash = hash
	s.mu.Unlock()
}
