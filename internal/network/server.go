// Package network принимает клиентов по TCP и KCP, разбирает кадры
// len(2) code(2) payload и раздаёт игровой трафик. Сервер реализует
// recorder.Transport: через него воспроизведение доходит до игроков, а всё,
// что сервер рассылает живым игрокам, попадает в запись.
package network

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/commands"
	"github.com/annel0/mmo-replay/internal/game"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/protocol"
	"github.com/annel0/mmo-replay/internal/recorder"
)

// Значения по умолчанию
const (
	DefaultTick        = 10 * time.Millisecond
	DefaultIdleTimeout = 2 * time.Minute
)

// Options параметры сервера
type Options struct {
	// MaxPlayers не больше protocol.ServerPlayer
	MaxPlayers  int
	Tick        time.Duration
	IdleTimeout time.Duration

	Recorder *recorder.Recorder
	Access   *access.Manager
	State    *game.State
	Metrics  *Metrics
}

// Server реестр клиентов и цикл воспроизведения.
// Блокировка mu никогда не удерживается при вызовах рекордера: рекордер
// сам вызывает PlayingPlayers и DirectMessage под своей блокировкой.
type Server struct {
	opts    Options
	log     *logging.Logger
	metrics *Metrics

	mu        sync.RWMutex
	clients   map[int]*Client
	listeners []net.Listener
	commands  *commands.Dispatcher

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Stats счётчики подключений
type Stats struct {
	Connections int `json:"connections"`
	Playing     int `json:"playing"`
}

var _ recorder.Transport = (*Server)(nil)
var _ commands.SessionSource = (*Server)(nil)

func NewServer(opts Options) *Server {
	if opts.MaxPlayers <= 0 || opts.MaxPlayers > protocol.ServerPlayer {
		opts.MaxPlayers = protocol.ServerPlayer
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:    opts,
		log:     logging.GetNetworkLogger(),
		metrics: opts.Metrics,
		clients: make(map[int]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetDispatcher подключает обработчик команд чата. Диспетчер создаётся после
// сервера, потому что сервер для него источник сессий.
func (s *Server) SetDispatcher(d *commands.Dispatcher) {
	s.mu.Lock()
	s.commands = d
	s.mu.Unlock()
}

// Start запускает цикл воспроизведения
func (s *Server) Start() {
	s.wg.Add(1)
	go s.tickLoop()
	s.log.Info("🚀 Сетевой сервер запущен (тик %v, до %d игроков)", s.opts.Tick, s.opts.MaxPlayers)
}

// Stop закрывает слушатели и соединения и ждёт завершения горутин
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		listeners := s.listeners
		s.listeners = nil
		clients := make([]*Client, 0, len(s.clients))
		for _, c := range s.clients {
			clients = append(clients, c)
		}
		s.mu.Unlock()

		for _, l := range listeners {
			l.Close()
		}
		for _, c := range clients {
			c.close()
		}
		s.wg.Wait()
		s.log.Info("🛑 Сетевой сервер остановлен")
	})
}

// ListenTCP начинает приём TCP-клиентов и возвращает фактический адрес
func (s *Server) ListenTCP(addr string) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.acceptLoop(l, "tcp")
	return l.Addr(), nil
}

// Serve принимает клиентов с готового слушателя до Stop
func (s *Server) Serve(l net.Listener) {
	s.wg.Add(1)
	s.acceptLoop(l, l.Addr().Network())
}

func (s *Server) acceptLoop(l net.Listener, network string) {
	defer s.wg.Done()

	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
	if s.ctx.Err() != nil {
		l.Close()
		return
	}
	s.log.Info("📡 Приём %s-клиентов на %s", network, l.Addr())

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("⚠️ Ошибка принятия соединения: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if sess, ok := conn.(*kcp.UDPSession); ok {
			tuneKCP(sess)
		}
		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	c, ok := s.register(conn)
	if !ok {
		s.metrics.rejects.WithLabelValues(strconv.Itoa(int(protocol.RejectServerFull))).Inc()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		WriteFrame(conn, protocol.MsgReject, protocol.PackReject(protocol.RejectServerFull, "Server is full"))
		conn.Close()
		s.log.Warn("⚠️ Сервер заполнен, отказ %s", conn.RemoteAddr())
		return
	}
	s.metrics.connections.Inc()
	s.log.Debug("🔌 Клиент %d подключился с %s", c.index, c.RemoteAddr())

	s.wg.Add(2)
	go c.writePump()
	go s.readPump(c)
}

// register выделяет наименьший свободный индекс
func (s *Server) register(conn net.Conn) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := 0; idx < s.opts.MaxPlayers; idx++ {
		if _, busy := s.clients[idx]; !busy {
			c := newClient(idx, conn, s)
			s.clients[idx] = c
			return c, true
		}
	}
	return nil, false
}

func (s *Server) readPump(c *Client) {
	defer s.wg.Done()
	defer s.disconnect(c)

	for {
		c.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		code, payload, err := ReadFrame(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("Клиент %d: ошибка чтения: %v", c.index, err)
			}
			return
		}
		s.metrics.frame("in", code, len(payload))
		s.handleFrame(c, code, payload)
	}
}

func (s *Server) disconnect(c *Client) {
	s.mu.Lock()
	if s.clients[c.index] != c {
		s.mu.Unlock()
		c.close()
		return
	}
	delete(s.clients, c.index)
	entered, playing := c.entered, c.playing
	c.playing = false
	s.mu.Unlock()

	c.close()
	s.metrics.connections.Dec()
	if playing {
		s.metrics.playing.Dec()
	}
	if !entered {
		s.log.Debug("Клиент %d отключился до входа", c.index)
		return
	}

	idx := uint8(c.index)
	s.opts.State.RemovePlayer(idx)
	if !s.replaying() {
		s.broadcast(protocol.MsgRemovePlayer, protocol.PackRemovePlayer(idx))
	}
	s.log.Info("👋 Игрок %d покинул игру", c.index)
}

func (s *Server) handleFrame(c *Client, code protocol.MessageCode, payload []byte) {
	switch code {
	case protocol.MsgEnter:
		s.handleEnter(c, payload)
		return
	case protocol.MsgExit:
		c.close()
		return
	case protocol.MsgAlive:
		return
	case protocol.MsgLagPing:
		c.Send(protocol.MsgLagPing, payload)
		return
	}

	// до входа доступны только команды (например /identify после отказа)
	if code == protocol.MsgMessage && s.sessionOf(c) != nil {
		s.handleChat(c, payload)
		return
	}
	if !s.isEntered(c) {
		s.log.Debug("Клиент %d прислал %s до входа", c.index, code)
		return
	}
	s.relay(c, code, payload)
}

func (s *Server) handleEnter(c *Client, payload []byte) {
	req, err := protocol.UnpackEnter(payload)
	if err != nil {
		s.reject(c, protocol.RejectBadRequest, "Malformed enter request")
		return
	}
	callSign := strings.TrimSpace(req.CallSign)
	if callSign == "" {
		s.reject(c, protocol.RejectBadCallsign, "Invalid callsign")
		return
	}
	if int(req.Team) >= len(s.opts.State.TeamScores()) {
		s.reject(c, protocol.RejectBadTeam, "Invalid team")
		return
	}

	// сессия переживает отказ, чтобы игрок мог выполнить /identify и войти снова
	s.mu.Lock()
	if c.entered {
		s.mu.Unlock()
		return
	}
	session := c.session
	if session == nil || session.Name() != strings.ToUpper(callSign) {
		session = s.opts.Access.NewSession(callSign)
		c.session = session
	}
	s.mu.Unlock()

	if !s.opts.Access.IsAllowedToEnter(session) {
		s.reject(c, protocol.RejectBadCallsign, "This callsign is registered. You must /identify first")
		return
	}

	s.mu.Lock()
	if s.callSignTakenLocked(c, session.Name()) {
		s.mu.Unlock()
		s.reject(c, protocol.RejectRepeatCallsign, "The callsign specified is already in use")
		return
	}
	c.entered = true
	s.mu.Unlock()

	player := protocol.PlayerState{
		Index:    uint8(c.index),
		Type:     req.Type,
		Team:     req.Team,
		CallSign: callSign,
		Email:    req.Email,
	}
	s.opts.State.AddPlayer(player)
	if err := s.opts.State.SetPlaying(player.Index); err != nil {
		s.log.Error("❌ Не удалось добавить игрока %d: %v", c.index, err)
	}
	c.Send(protocol.MsgAccept, protocol.PackAccept(player.Index))

	replaying := s.replaying()
	if !replaying {
		s.sendSnapshot(c)
	}

	s.mu.Lock()
	c.playing = true
	s.mu.Unlock()
	s.metrics.playing.Inc()

	if !replaying {
		s.broadcast(protocol.MsgAddPlayer, protocol.PackAddPlayer(player))
	}
	s.log.Info("🎮 %s вошёл в игру (индекс %d, команда %d)", callSign, c.index, req.Team)
}

// sendSnapshot отправляет новому игроку счёт, флаги и уже играющих игроков
func (s *Server) sendSnapshot(c *Client) {
	c.Send(protocol.MsgTeamUpdate, protocol.PackTeamUpdate(s.opts.State.TeamScores()))
	for _, chunk := range protocol.PackFlagUpdates(s.opts.State.Flags()) {
		c.Send(protocol.MsgFlagUpdate, chunk)
	}
	for _, p := range s.opts.State.Players() {
		if int(p.Index) == c.index {
			continue
		}
		c.Send(protocol.MsgAddPlayer, protocol.PackAddPlayer(p))
	}
}

func (s *Server) handleChat(c *Client, payload []byte) {
	_, to, text, err := protocol.UnpackMessage(payload)
	if err != nil {
		return
	}
	session := s.sessionOf(c)

	if commands.IsCommand(text) {
		s.mu.RLock()
		d := s.commands
		s.mu.RUnlock()
		if d == nil {
			return
		}
		caller := commands.Caller{Index: c.index, CallSign: session.Name(), Access: session}
		for _, line := range d.Dispatch(caller, text) {
			s.serverMessage(c, line)
		}
		return
	}
	if !s.isEntered(c) {
		return
	}

	if !s.opts.Access.HasPerm(session, access.Talk) {
		s.serverMessage(c, "We're sorry, you are not allowed to talk!")
		return
	}
	if s.replaying() {
		return
	}

	msg := protocol.PackMessage(uint8(c.index), to, text)
	if to == protocol.AllPlayers {
		s.broadcast(protocol.MsgMessage, msg)
		return
	}
	if !s.opts.Access.HasPerm(session, access.PrivateMessage) {
		s.serverMessage(c, "You are not allowed to send private messages")
		return
	}
	if err := s.DirectMessage(int(to), protocol.MsgMessage, msg); err != nil {
		s.serverMessage(c, "Unknown player")
		return
	}
	if int(to) != c.index {
		c.Send(protocol.MsgMessage, msg)
	}
}

// relay рассылает игровое сообщение всем играющим и обновляет состояние матча
func (s *Server) relay(c *Client, code protocol.MessageCode, payload []byte) {
	if s.replaying() {
		return
	}
	switch code {
	case protocol.MsgKilled:
		if victim, killer, err := protocol.UnpackKilled(payload); err == nil && int(victim) == c.index {
			s.opts.State.RecordKill(killer, victim)
		}
	case protocol.MsgGrabFlag:
		if player, flag, err := protocol.UnpackGrabFlag(payload); err == nil && int(player) == c.index {
			if err := s.opts.State.GrabFlag(flag, player); err != nil {
				s.log.Debug("Игрок %d: флаг %d: %v", c.index, flag, err)
			}
		}
	}
	s.broadcast(code, payload)
}

// broadcast отправляет сообщение всем играющим и передаёт его в запись
func (s *Server) broadcast(code protocol.MessageCode, payload []byte) {
	for _, c := range s.playingClients() {
		if err := c.Send(code, payload); err != nil {
			s.log.Debug("не удалось отправить %s игроку %d: %v", code, c.index, err)
		}
	}
	if err := s.opts.Recorder.Capture.AddPacket(code, payload, false); err != nil {
		s.log.Warn("⚠️ Пакет %s не записан: %v", code, err)
	}
}

func (s *Server) serverMessage(c *Client, text string) {
	c.Send(protocol.MsgMessage, protocol.PackMessage(protocol.ServerPlayer, uint8(c.index), text))
}

func (s *Server) reject(c *Client, code uint16, reason string) {
	s.metrics.rejects.WithLabelValues(strconv.Itoa(int(code))).Inc()
	c.Send(protocol.MsgReject, protocol.PackReject(code, reason))
	s.log.Info("🚫 Клиенту %d отказано во входе: %s", c.index, reason)
}

func (s *Server) replaying() bool {
	return s.opts.Recorder.Replay.Enabled()
}

func (s *Server) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.opts.Recorder.Replay.Tick()
		}
	}
}

func (s *Server) callSignTakenLocked(self *Client, name string) bool {
	for _, other := range s.clients {
		if other != self && other.entered && other.session != nil && other.session.Name() == name {
			return true
		}
	}
	return false
}

func (s *Server) isEntered(c *Client) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.entered
}

func (s *Server) sessionOf(c *Client) *access.AccessInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.session
}

func (s *Server) playingClients() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.playing {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// PlayingPlayers реализует recorder.Transport
func (s *Server) PlayingPlayers() []int {
	clients := s.playingClients()
	out := make([]int, len(clients))
	for i, c := range clients {
		out[i] = c.index
	}
	return out
}

// DirectMessage реализует recorder.Transport; не блокируется
func (s *Server) DirectMessage(playerIndex int, code protocol.MessageCode, payload []byte) error {
	s.mu.RLock()
	c, ok := s.clients[playerIndex]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownClient
	}
	return c.Send(code, payload)
}

// Sessions реализует commands.SessionSource
func (s *Server) Sessions() []*access.AccessInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.AccessInfo, 0, len(s.clients))
	for _, c := range s.clients {
		if c.entered && c.session != nil {
			out = append(out, c.session)
		}
	}
	return out
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Connections: len(s.clients)}
	for _, c := range s.clients {
		if c.playing {
			st.Playing++
		}
	}
	return st
}
