package recorder

import (
	"github.com/annel0/mmo-replay/internal/protocol"
)

// RecordOverhead заголовок записи: synthetic(2) code(2) len(4) prevLen(4) timestamp(8)
const RecordOverhead = 2 + 2 + 4 + 4 + 8

// Packet одна записанная единица трафика
type Packet struct {
	// Synthetic пакет создан сервером для снимка состояния, а не пришёл от клиента
	Synthetic bool
	Code      protocol.MessageCode
	// PrevLen длина предыдущей записи в файле (только для совместимости)
	PrevLen int32
	// Timestamp время захвата в микросекундах
	Timestamp int64
	Data      []byte
}

// Size учитываемый размер записи в буфере
func (p *Packet) Size() int {
	return len(p.Data) + RecordOverhead
}

// IsAnchor снимок счёта команд открывает полный снимок состояния
func (p *Packet) IsAnchor() bool {
	return p.Synthetic && p.Code == protocol.MsgTeamUpdate
}
