package recorder

// Buffer очередь записей: новые добавляются в голову, старые извлекаются из хвоста.
// Счётчики обновляются вместе с содержимым; синхронизацию обеспечивает владелец.
type Buffer struct {
	ring  []Packet
	head  int // индекс самой старой записи
	count int
	bytes int
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append добавляет запись как самую новую
func (b *Buffer) Append(p Packet) {
	if b.count == len(b.ring) {
		b.grow()
	}
	b.ring[(b.head+b.count)%len(b.ring)] = p
	b.count++
	b.bytes += p.Size()
}

// PopOldest извлекает самую старую запись
func (b *Buffer) PopOldest() (Packet, bool) {
	if b.count == 0 {
		return Packet{}, false
	}
	p := b.ring[b.head]
	b.ring[b.head] = Packet{}
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.bytes -= p.Size()
	if b.count == 0 {
		b.head = 0
	}
	return p, true
}

// Oldest возвращает самую старую запись без извлечения
func (b *Buffer) Oldest() (*Packet, bool) {
	if b.count == 0 {
		return nil, false
	}
	return &b.ring[b.head], true
}

// Each обходит записи от старой к новой; fn возвращает false для остановки
func (b *Buffer) Each(fn func(p *Packet) bool) {
	for i := 0; i < b.count; i++ {
		if !fn(&b.ring[(b.head+i)%len(b.ring)]) {
			return
		}
	}
}

// Clear освобождает все записи
func (b *Buffer) Clear() {
	b.ring = nil
	b.head = 0
	b.count = 0
	b.bytes = 0
}

func (b *Buffer) TotalBytes() int { return b.bytes }
func (b *Buffer) Count() int      { return b.count }

func (b *Buffer) grow() {
	size := len(b.ring) * 2
	if size == 0 {
		size = 64
	}
	ring := make([]Packet, size)
	for i := 0; i < b.count; i++ {
		ring[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = ring
	b.head = 0
}
