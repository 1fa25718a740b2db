package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/annel0/mmo-replay/internal/logging"
)

// Replay воспроизведение файла записи подключённым клиентам
type Replay struct {
	r   *Recorder
	log *logging.Logger

	dir       string
	readAhead int

	enabled bool
	playing bool
	// offset сдвиг записанного времени к текущему, мкс
	offset int64
	// pendingSkip пропуск, запрошенный до Play, мкс
	pendingSkip int64

	buffer   *Buffer
	reader   *RecordReader
	fileName string
	header   Header
	eof      bool
	loaded   int
	sent     int
}

// FileInfo файл в каталоге записей
type FileInfo struct {
	Name       string
	Size       int64
	ModTime    time.Time
	Compressed bool
	Valid      bool
	WorldHash  string
}

// Progress состояние воспроизведения
type Progress struct {
	Enabled         bool
	Playing         bool
	FileName        string
	WorldHash       string
	BufferedPackets int
	BufferedBytes   int
	Loaded          int
	Sent            int
}

func (rp *Replay) resetLocked() {
	if rp.reader != nil {
		if err := rp.reader.Close(); err != nil {
			rp.log.Warn("⚠️ Ошибка закрытия файла воспроизведения %s: %v", rp.fileName, err)
		}
		rp.reader = nil
	}
	rp.buffer.Clear()
	rp.fileName = ""
	rp.header = Header{}
	rp.playing = false
	rp.offset = 0
	rp.pendingSkip = 0
	rp.eof = false
	rp.loaded = 0
	rp.sent = 0
}

// Enable включает режим воспроизведения. Запрещено во время записи.
func (rp *Replay) Enable() error {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()

	if rp.r.Capture.capturing {
		return ErrModeConflict
	}
	rp.resetLocked()
	rp.enabled = true
	rp.log.Info("📼 Режим воспроизведения включён")
	return nil
}

// Disable выходит из режима воспроизведения, освобождая файл и буфер
func (rp *Replay) Disable() {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()
	rp.resetLocked()
	if rp.enabled {
		rp.log.Info("📼 Режим воспроизведения выключен")
	}
	rp.enabled = false
}

// Reset выгружает файл, оставаясь в режиме воспроизведения
func (rp *Replay) Reset() error {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()
	if !rp.enabled {
		return ErrNotActive
	}
	rp.resetLocked()
	return nil
}

// LoadFile открывает файл, проверяет заголовок и заполняет буфер предзагрузки
func (rp *Replay) LoadFile(name string) error {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()

	if !rp.enabled {
		return ErrNotActive
	}
	if rp.reader != nil {
		return ErrAlreadyLoaded
	}
	path, err := ResolvePath(rp.dir, name)
	if err != nil {
		return err
	}

	reader, err := OpenRecordFile(path)
	if err != nil {
		if errors.Is(err, ErrMalformedFile) {
			rp.r.metrics.malformedLoads.Inc()
		}
		rp.log.Warn("⚠️ Не удалось открыть %s: %v", path, err)
		return err
	}
	rp.reader = reader
	rp.fileName = path
	rp.header = reader.Header()

	if err := rp.fillLocked(); err != nil {
		rp.r.metrics.malformedLoads.Inc()
		rp.log.Error("❌ Повреждённый файл %s: %v", path, err)
		rp.resetLocked()
		return err
	}
	if rp.buffer.Count() == 0 {
		rp.resetLocked()
		return fmt.Errorf("%w: %s", ErrNoData, path)
	}

	rp.log.Info("📂 Загружен файл %s (%d пакетов в буфере)", path, rp.buffer.Count())
	rp.r.emit(Event{Kind: EventReplayLoaded, File: path, WorldHash: rp.header.WorldHash, Bytes: rp.buffer.TotalBytes(), Packets: rp.buffer.Count()})
	return nil
}

// fillLocked дочитывает файл, пока буфер меньше бюджета
func (rp *Replay) fillLocked() error {
	for !rp.eof && rp.buffer.TotalBytes() < rp.readAhead {
		p, err := rp.reader.Next()
		if err == io.EOF {
			rp.eof = true
			break
		}
		if err != nil {
			if errors.Is(err, errTruncated) && rp.loaded > 0 {
				// файл оборван на последней записи (например, сервер упал во время записи)
				rp.log.Warn("⚠️ Файл %s обрывается после %d записей: %v", rp.fileName, rp.loaded, err)
				rp.eof = true
				break
			}
			return err
		}
		rp.buffer.Append(p)
		rp.loaded++
	}
	if rp.reader != nil && rp.reader.Mismatches > 0 {
		rp.log.Debug("prevLen расходится в %d записях файла %s", rp.reader.Mismatches, rp.fileName)
	}
	return nil
}

// Play запускает воспроизведение с самой старой записи буфера, сдвинутой
// на накопленный до запуска пропуск
func (rp *Replay) Play() error {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()

	if !rp.enabled || rp.reader == nil {
		return ErrNotActive
	}
	oldest, ok := rp.buffer.Oldest()
	if !ok {
		return ErrNoData
	}
	rp.playing = true
	rp.offset = rp.r.now() - oldest.Timestamp - rp.pendingSkip
	if rp.pendingSkip != 0 {
		rp.log.Debug("⏩ Отложенный пропуск %v", time.Duration(rp.pendingSkip)*time.Microsecond)
	}
	rp.pendingSkip = 0
	rp.log.Info("▶️ Воспроизведение %s", rp.fileName)
	rp.r.emit(Event{Kind: EventReplayStarted, File: rp.fileName, WorldHash: rp.header.WorldHash})
	return nil
}

// Stop приостанавливает воспроизведение, файл остаётся загруженным
func (rp *Replay) Stop() error {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()
	if !rp.playing {
		return ErrNotActive
	}
	rp.playing = false
	rp.log.Info("⏸️ Воспроизведение остановлено")
	return nil
}

// Skip сдвигает точку воспроизведения на d (отрицательное значение назад).
// Меняется только смещение времени, записи не выравниваются. До Play
// пропуск копится и применяется при запуске.
func (rp *Replay) Skip(d time.Duration) error {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()

	if !rp.enabled || rp.reader == nil {
		return ErrNotActive
	}
	if !rp.playing {
		rp.pendingSkip += d.Microseconds()
		rp.log.Debug("⏩ Пропуск %v отложен до запуска", d)
		return nil
	}
	rp.offset -= d.Microseconds()
	rp.log.Debug("⏩ Пропуск %v", d)
	return nil
}

// NextTime секунды до следующего пакета; отрицательное значение значит опоздание.
// Без активного воспроизведения возвращает NextTimeIdle.
func (rp *Replay) NextTime() float64 {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()
	return rp.nextTimeLocked()
}

func (rp *Replay) nextTimeLocked() float64 {
	if !rp.enabled || !rp.playing {
		return NextTimeIdle
	}
	oldest, ok := rp.buffer.Oldest()
	if !ok {
		return NextTimeIdle
	}
	diff := oldest.Timestamp + rp.offset - rp.r.now()
	return float64(diff) / 1e6
}

// Tick отправляет все пакеты, время которых наступило. Возвращает false,
// когда воспроизведение не идёт или поток закончился.
func (rp *Replay) Tick() bool {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()

	if !rp.enabled || !rp.playing {
		return false
	}

	for {
		oldest, ok := rp.buffer.Oldest()
		if !ok {
			break
		}
		if oldest.Timestamp+rp.offset-rp.r.now() > 0 {
			return true
		}
		p, _ := rp.buffer.PopOldest()
		rp.sendLocked(&p)

		if err := rp.fillLocked(); err != nil {
			rp.r.metrics.malformedLoads.Inc()
			rp.log.Error("❌ Повреждённая запись в %s, воспроизведение прервано: %v", rp.fileName, err)
			file := rp.fileName
			rp.resetLocked()
			rp.r.emit(Event{Kind: EventReplayFinished, File: file})
			return false
		}
	}

	rp.playing = false
	rp.log.Info("🏁 Воспроизведение %s завершено (%d пакетов)", rp.fileName, rp.sent)
	rp.r.emit(Event{Kind: EventReplayFinished, File: rp.fileName, WorldHash: rp.header.WorldHash, Packets: rp.sent})
	return false
}

func (rp *Replay) sendLocked(p *Packet) {
	rp.sent++
	rp.r.metrics.replayed.Inc()
	t := rp.r.transport
	if t == nil {
		return
	}
	for _, idx := range t.PlayingPlayers() {
		if err := t.DirectMessage(idx, p.Code, p.Data); err != nil {
			rp.log.Debug("не удалось отправить %s игроку %d: %v", p.Code, idx, err)
		}
	}
}

// Enabled включён ли режим воспроизведения
func (rp *Replay) Enabled() bool {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()
	return rp.enabled
}

// Playing идёт ли воспроизведение
func (rp *Replay) Playing() bool {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()
	return rp.playing
}

func (rp *Replay) Progress() Progress {
	rp.r.mu.Lock()
	defer rp.r.mu.Unlock()
	return Progress{
		Enabled:         rp.enabled,
		Playing:         rp.playing,
		FileName:        rp.fileName,
		WorldHash:       rp.header.WorldHash,
		BufferedPackets: rp.buffer.Count(),
		BufferedBytes:   rp.buffer.TotalBytes(),
		Loaded:          rp.loaded,
		Sent:            rp.sent,
	}
}

// ListFiles перечисляет файлы каталога воспроизведения
func (rp *Replay) ListFiles() ([]FileInfo, error) {
	rp.r.mu.Lock()
	dir := rp.dir
	rp.r.mu.Unlock()
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		fi := FileInfo{
			Name:       e.Name(),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Compressed: IsCompressed(e.Name()),
		}
		path, _ := ResolvePath(dir, e.Name())
		if reader, err := OpenRecordFile(path); err == nil {
			fi.Valid = true
			fi.WorldHash = reader.Header().WorldHash
			reader.Close()
		}
		files = append(files, fi)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
