// Package recorder записывает игровой трафик в буфер или файл и воспроизводит
// сохранённые записи подключённым клиентам.
package recorder

import (
	"sync"
	"time"

	"github.com/annel0/mmo-replay/internal/logging"
)

// Значения по умолчанию
const (
	DefaultMaxBytes       = 16 * 1024 * 1024
	DefaultUpdateInterval = 10 * time.Second
)

// NextTimeIdle значение NextTime, когда воспроизводить нечего
const NextTimeIdle = 1000.0

// CaptureMode куда направляются записанные пакеты
type CaptureMode int

const (
	BufferedCapture CaptureMode = iota
	StraightToFile
)

func (m CaptureMode) String() string {
	if m == StraightToFile {
		return "file"
	}
	return "buffer"
}

// Mode режим рекордера целиком
type Mode int

const (
	ModeIdle Mode = iota
	ModeCapturingToBuffer
	ModeCapturingToFile
	ModeReplay
)

func (m Mode) String() string {
	switch m {
	case ModeCapturingToBuffer:
		return "capturing-to-buffer"
	case ModeCapturingToFile:
		return "capturing-to-file"
	case ModeReplay:
		return "replay"
	default:
		return "idle"
	}
}

// Options параметры рекордера
type Options struct {
	MaxBytes       int
	UpdateInterval time.Duration
	CaptureDir     string
	ReplayDir      string
	// ReadAheadBytes бюджет предзагрузки; 0 означает MaxBytes
	ReadAheadBytes int

	Clock     Clock
	State     StateSource
	Transport Transport
	Observer  Observer
	Metrics   *Metrics
}

// Recorder общий контекст записи и воспроизведения. Все операции Capture и
// Replay выполняются под одной блокировкой, поэтому режимы взаимоисключающие.
type Recorder struct {
	mu        sync.Mutex
	clock     Clock
	state     StateSource
	transport Transport
	observer  Observer
	metrics   *Metrics

	Capture *Capture
	Replay  *Replay
}

// New создаёт рекордер в режиме Idle
func New(opts Options) *Recorder {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.ReadAheadBytes <= 0 {
		opts.ReadAheadBytes = opts.MaxBytes
	}
	if opts.ReplayDir == "" {
		opts.ReplayDir = opts.CaptureDir
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	r := &Recorder{
		clock:     opts.Clock,
		state:     opts.State,
		transport: opts.Transport,
		observer:  opts.Observer,
		metrics:   opts.Metrics,
	}
	r.Capture = &Capture{
		r:          r,
		log:        logging.GetCaptureLogger(),
		dir:        opts.CaptureDir,
		maxBytes:   opts.MaxBytes,
		updateRate: opts.UpdateInterval,
		buffer:     NewBuffer(),
	}
	r.Replay = &Replay{
		r:         r,
		log:       logging.GetReplayLogger(),
		dir:       opts.ReplayDir,
		readAhead: opts.ReadAheadBytes,
		buffer:    NewBuffer(),
	}
	return r
}

// SetTransport подключает транспорт после создания (сервер создаётся позже рекордера)
func (r *Recorder) SetTransport(t Transport) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
}

// Mode текущий режим
func (r *Recorder) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modeLocked()
}

func (r *Recorder) modeLocked() Mode {
	switch {
	case r.Replay.enabled:
		return ModeReplay
	case r.Capture.capturing && r.Capture.mode == StraightToFile:
		return ModeCapturingToFile
	case r.Capture.capturing:
		return ModeCapturingToBuffer
	default:
		return ModeIdle
	}
}

// Close завершает запись и воспроизведение, закрывая файлы
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.Capture.finishFileLocked()
	r.Capture.resetLocked()
	r.Replay.resetLocked()
	r.Replay.enabled = false
	return err
}

func (r *Recorder) now() int64 {
	return micros(r.clock.Now())
}

func (r *Recorder) worldHash() string {
	if r.state == nil {
		return ""
	}
	return r.state.WorldHash()
}

func (r *Recorder) emit(ev Event) {
	if r.observer == nil {
		return
	}
	ev.At = r.clock.Now()
	r.observer.OnRecorderEvent(ev)
}
