package recorder

import (
	"fmt"
	"time"

	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/protocol"
)

// Capture запись трафика в буфер в памяти или напрямую в файл
type Capture struct {
	r   *Recorder
	log *logging.Logger

	dir        string
	capturing  bool
	mode       CaptureMode
	maxBytes   int
	updateRate time.Duration
	updateTime int64

	buffer *Buffer
	// anchors число полных снимков в буфере
	anchors int

	file      *RecordWriter
	fileName  string
	startedAt time.Time
}

// Stats состояние записи для /capture stats
type Stats struct {
	Capturing      bool
	Mode           CaptureMode
	FileName       string
	MaxBytes       int
	UpdateInterval time.Duration
	BufferBytes    int
	BufferPackets  int
	FileBytes      int
	FilePackets    int
	// Span время между самой старой и самой новой записью буфера
	Span time.Duration
}

// FileSummary итог записанного файла
type FileSummary struct {
	Path      string
	Mode      CaptureMode
	WorldHash string
	Bytes     int
	Packets   int
	StartedAt time.Time
}

// resetLocked полная очистка: файл закрыт, буфер освобождён. Настройки сохраняются.
func (c *Capture) resetLocked() {
	if c.file != nil {
		if err := c.file.Close(); err != nil {
			c.log.Warn("⚠️ Ошибка закрытия файла записи %s: %v", c.fileName, err)
		}
		c.file = nil
	}
	c.fileName = ""
	c.buffer.Clear()
	c.anchors = 0
	c.capturing = false
	c.mode = BufferedCapture
	c.updateTime = 0
	c.startedAt = time.Time{}
	c.r.metrics.observeBuffer(c.buffer)
}

// finishFileLocked закрывает файл прямой записи и сообщает о нём
func (c *Capture) finishFileLocked() error {
	if c.file == nil {
		return nil
	}
	summary := FileSummary{
		Path:      c.fileName,
		Mode:      StraightToFile,
		WorldHash: c.r.worldHash(),
		Bytes:     c.file.Bytes(),
		Packets:   c.file.Packets(),
		StartedAt: c.startedAt,
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		c.log.Error("❌ Ошибка закрытия файла записи %s: %v", summary.Path, err)
		return err
	}
	c.r.metrics.filesWritten.Inc()
	c.log.Info("💾 Запись сохранена: %s (%d байт, %d пакетов)", summary.Path, summary.Bytes, summary.Packets)
	c.r.emit(summaryEvent(EventCaptureSaved, summary))
	return nil
}

// Start включает запись в буфер и сразу делает полный снимок состояния
func (c *Capture) Start() error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()

	if c.r.Replay.enabled {
		return ErrModeConflict
	}
	if c.capturing && c.mode == StraightToFile {
		if err := c.finishFileLocked(); err != nil {
			c.resetLocked()
			return err
		}
		c.resetLocked()
	}

	c.capturing = true
	c.mode = BufferedCapture
	c.startedAt = c.r.clock.Now()
	if err := c.saveStatesLocked(); err != nil {
		return err
	}
	c.log.Info("🎬 Запись в буфер начата (лимит %d байт)", c.maxBytes)
	c.r.emit(Event{Kind: EventCaptureStarted, Mode: BufferedCapture, WorldHash: c.r.worldHash(), StartedAt: c.startedAt})
	return nil
}

// Stop останавливает запись. Запись в файл завершается полностью,
// буфер в памяти остаётся для последующего SaveBuffer.
func (c *Capture) Stop() error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()

	if !c.capturing {
		return ErrNotActive
	}

	stats := c.statsLocked()
	startedAt := c.startedAt
	c.capturing = false
	var err error
	if c.mode == StraightToFile {
		err = c.finishFileLocked()
		c.resetLocked()
	}
	c.log.Info("⏹️ Запись остановлена (%s)", stats.Mode)
	c.r.emit(Event{
		Kind:      EventCaptureStopped,
		Mode:      stats.Mode,
		File:      stats.FileName,
		Bytes:     stats.BufferBytes + stats.FileBytes,
		Packets:   stats.BufferPackets + stats.FilePackets,
		StartedAt: startedAt,
	})
	return err
}

// SetMaxBytes бюджет буфера; применяется при следующем добавлении пакета
func (c *Capture) SetMaxBytes(n int) {
	c.r.mu.Lock()
	c.maxBytes = n
	c.r.mu.Unlock()
}

// SetUpdateInterval период полных снимков состояния
func (c *Capture) SetUpdateInterval(d time.Duration) {
	c.r.mu.Lock()
	c.updateRate = d
	c.r.mu.Unlock()
}

func (c *Capture) MaxBytes() int {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.maxBytes
}

func (c *Capture) UpdateInterval() time.Duration {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.updateRate
}

// Enabled идёт ли запись
func (c *Capture) Enabled() bool {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.capturing
}

func (c *Capture) FileName() string {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.fileName
}

// AddPacket принимает пакет игрового трафика. При необходимости сначала
// делает периодический полный снимок. Пакеты длиннее MaxPacketLen
// отклоняются с ErrPacketTooLarge.
func (c *Capture) AddPacket(code protocol.MessageCode, data []byte, synthetic bool) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()

	if !c.capturing {
		return nil
	}
	if len(data) > protocol.MaxPacketLen {
		return fmt.Errorf("%w: %s %d bytes", ErrPacketTooLarge, code, len(data))
	}
	now := c.r.now()
	if time.Duration(now-c.updateTime)*time.Microsecond > c.updateRate {
		if err := c.saveStatesLocked(); err != nil {
			return err
		}
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return c.routeLocked(Packet{Synthetic: synthetic, Code: code, Timestamp: now, Data: payload})
}

// SaveBuffer пишет заголовок и весь буфер от старых записей к новым.
// Живой буфер не меняется.
func (c *Capture) SaveBuffer(name string) (FileSummary, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()

	if c.r.Replay.enabled {
		return FileSummary{}, ErrModeConflict
	}
	if c.mode != BufferedCapture || (!c.capturing && c.buffer.Count() == 0) {
		return FileSummary{}, ErrNotActive
	}
	path, err := ResolvePath(c.dir, name)
	if err != nil {
		return FileSummary{}, err
	}

	w, err := CreateRecordFile(path, c.r.worldHash())
	if err != nil {
		c.log.Error("❌ Не удалось открыть %s для записи: %v", path, err)
		return FileSummary{}, err
	}
	var writeErr error
	c.buffer.Each(func(p *Packet) bool {
		writeErr = w.Write(p)
		return writeErr == nil
	})
	closeErr := w.Close()
	if writeErr != nil {
		return FileSummary{}, writeErr
	}
	if closeErr != nil {
		return FileSummary{}, closeErr
	}

	summary := FileSummary{
		Path:      path,
		Mode:      BufferedCapture,
		WorldHash: c.r.worldHash(),
		Bytes:     w.Bytes(),
		Packets:   w.Packets(),
		StartedAt: c.startedAt,
	}
	c.r.metrics.filesWritten.Inc()
	c.log.Info("💾 Буфер сохранён в %s (%d пакетов)", path, summary.Packets)
	c.r.emit(summaryEvent(EventCaptureSaved, summary))
	return summary, nil
}

// SaveFile переводит запись в режим прямой записи в файл: заголовок,
// полный снимок, затем живой трафик.
func (c *Capture) SaveFile(name string) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()

	if c.r.Replay.enabled {
		return ErrModeConflict
	}
	path, err := ResolvePath(c.dir, name)
	if err != nil {
		return err
	}

	if err := c.finishFileLocked(); err != nil {
		c.log.Warn("⚠️ Предыдущий файл записи закрыт с ошибкой: %v", err)
	}
	c.resetLocked()

	w, err := CreateRecordFile(path, c.r.worldHash())
	if err != nil {
		c.log.Error("❌ Не удалось открыть %s для записи: %v", path, err)
		return err
	}
	c.file = w
	c.fileName = path
	c.capturing = true
	c.mode = StraightToFile
	c.startedAt = c.r.clock.Now()

	if err := c.saveStatesLocked(); err != nil {
		c.resetLocked()
		return fmt.Errorf("save states: %w", err)
	}
	c.log.Info("🎬 Запись в файл %s начата", path)
	c.r.emit(Event{Kind: EventCaptureStarted, Mode: StraightToFile, File: path, WorldHash: c.r.worldHash(), StartedAt: c.startedAt})
	return nil
}

// Stats текущее состояние записи
func (c *Capture) Stats() Stats {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.statsLocked()
}

func (c *Capture) statsLocked() Stats {
	s := Stats{
		Capturing:      c.capturing,
		Mode:           c.mode,
		FileName:       c.fileName,
		MaxBytes:       c.maxBytes,
		UpdateInterval: c.updateRate,
		BufferBytes:    c.buffer.TotalBytes(),
		BufferPackets:  c.buffer.Count(),
	}
	if c.file != nil {
		s.FileBytes = c.file.Bytes()
		s.FilePackets = c.file.Packets()
	}
	if oldest, ok := c.buffer.Oldest(); ok {
		first := oldest.Timestamp
		var last int64
		c.buffer.Each(func(p *Packet) bool {
			last = p.Timestamp
			return true
		})
		s.Span = time.Duration(last-first) * time.Microsecond
	}
	return s
}

// saveStatesLocked полный снимок: счёт команд, флаги, игроки
func (c *Capture) saveStatesLocked() error {
	now := c.r.now()
	c.updateTime = now
	state := c.r.state
	if state == nil {
		return nil
	}
	c.r.metrics.snapshots.Inc()

	if err := c.routeLocked(Packet{
		Synthetic: true,
		Code:      protocol.MsgTeamUpdate,
		Timestamp: now,
		Data:      protocol.PackTeamUpdate(state.TeamScores()),
	}); err != nil {
		return err
	}
	for _, payload := range protocol.PackFlagUpdates(state.Flags()) {
		if err := c.routeLocked(Packet{Synthetic: true, Code: protocol.MsgFlagUpdate, Timestamp: now, Data: payload}); err != nil {
			return err
		}
	}
	for _, p := range state.Players() {
		if err := c.routeLocked(Packet{Synthetic: true, Code: protocol.MsgAddPlayer, Timestamp: now, Data: protocol.PackAddPlayer(p)}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Capture) routeLocked(p Packet) error {
	if !c.capturing {
		return nil
	}
	c.r.metrics.packetCaptured(p.Synthetic)

	if c.mode == StraightToFile {
		if err := c.file.Write(&p); err != nil {
			c.log.Error("❌ Ошибка записи в %s, запись прекращена: %v", c.fileName, err)
			c.resetLocked()
			return err
		}
		c.log.Trace("записан %s (%d байт)", p.Code, len(p.Data))
		return nil
	}

	c.buffer.Append(p)
	if p.IsAnchor() {
		c.anchors++
	}
	c.evictLocked()
	c.r.metrics.observeBuffer(c.buffer)
	c.log.Trace("в буфер %s (%d байт)", p.Code, len(p.Data))
	return nil
}

// evictLocked удаляет самые старые записи, пока буфер превышает бюджет.
// Последний полный снимок не удаляется, чтобы у буфера всегда была точка старта.
func (c *Capture) evictLocked() {
	for c.buffer.TotalBytes() > c.maxBytes {
		oldest, ok := c.buffer.Oldest()
		if !ok {
			return
		}
		if oldest.IsAnchor() && c.anchors <= 1 {
			return
		}
		p, _ := c.buffer.PopOldest()
		if p.IsAnchor() {
			c.anchors--
		}
		c.r.metrics.evicted.Inc()
	}
}

func summaryEvent(kind EventKind, s FileSummary) Event {
	return Event{
		Kind:      kind,
		Mode:      s.Mode,
		File:      s.Path,
		WorldHash: s.WorldHash,
		Bytes:     s.Bytes,
		Packets:   s.Packets,
		StartedAt: s.StartedAt,
	}
}
