package recorder

import "errors"

var (
	// ErrModeConflict запись и воспроизведение не могут быть активны одновременно
	ErrModeConflict = errors.New("capture and replay are mutually exclusive")
	// ErrIO ошибка открытия, чтения или записи файла
	ErrIO = errors.New("capture file i/o failure")
	// ErrMalformedFile неверная сигнатура, версия, обрезанная запись или слишком длинный пакет
	ErrMalformedFile = errors.New("malformed capture file")
	// ErrNotActive операция требует активной записи или загруженного файла
	ErrNotActive = errors.New("not active")
	// ErrAlreadyLoaded файл уже загружен, нужен Reset
	ErrAlreadyLoaded = errors.New("replay file already loaded")
	// ErrNoData файл не содержит ни одной записи
	ErrNoData = errors.New("no valid data")
	// ErrBadFileName имя файла выходит за пределы каталога записей
	ErrBadFileName = errors.New("invalid capture file name")
	// ErrPacketTooLarge пакет длиннее protocol.MaxPacketLen не записывается
	ErrPacketTooLarge = errors.New("packet exceeds maximum length")

	// errTruncated запись обрывается на конце файла
	errTruncated = errors.New("truncated record")
)
