package network

import (
	"fmt"
	"net"

	"github.com/xtaci/kcp-go/v5"
)

// ListenKCP начинает приём KCP-клиентов (надёжный поток поверх UDP)
func (s *Server) ListenKCP(addr string) (net.Addr, error) {
	l, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("kcp listen %s: %w", addr, err)
	}
	s.wg.Add(1)
	go s.acceptLoop(l, "kcp")
	return l.Addr(), nil
}

// DialKCP открывает клиентскую KCP-сессию с теми же настройками, что у сервера
func DialKCP(addr string) (net.Conn, error) {
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("kcp dial %s: %w", addr, err)
	}
	tuneKCP(sess)
	return sess, nil
}

// tuneKCP настройки сессии для игрового трафика
func tuneKCP(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 20, 2, 1)
	sess.SetWindowSize(512, 512)
	sess.SetMtu(1400)
}
