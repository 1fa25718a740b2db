package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/recorder"
)

// Summary итог чтения файла записи
type Summary struct {
	Path              string
	Version           uint32
	WorldHash         string
	FileBytes         int64
	Records           int
	Synthetic         int
	PayloadBytes      int
	First, Last       time.Time
	Codes             map[string]int
	PrevLenMismatches int
}

func usecTime(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// inspectFile читает файл целиком. При повреждённом хвосте возвращает
// собранную до него сводку вместе с ошибкой.
func inspectFile(path string) (*Summary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	reader, err := recorder.OpenRecordFile(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	h := reader.Header()
	s := &Summary{
		Path:      path,
		Version:   h.Version,
		WorldHash: h.WorldHash,
		FileBytes: info.Size(),
		Codes:     make(map[string]int),
	}
	for {
		p, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.PrevLenMismatches = reader.Mismatches
			return s, err
		}
		if s.Records == 0 {
			s.First = usecTime(p.Timestamp)
		}
		s.Last = usecTime(p.Timestamp)
		s.Records++
		s.PayloadBytes += len(p.Data)
		if p.Synthetic {
			s.Synthetic++
		}
		s.Codes[p.Code.String()]++
	}
	s.PrevLenMismatches = reader.Mismatches
	return s, nil
}

// dumpFile печатает первые limit записей с шестнадцатеричным дампом нагрузки
func dumpFile(w io.Writer, path string, limit int) error {
	reader, err := recorder.OpenRecordFile(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	for i := 0; limit <= 0 || i < limit; i++ {
		p, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		mark := " "
		if p.Synthetic {
			mark = "*"
		}
		fmt.Fprintf(w, "%5d %s %s %-16s %4d\n",
			i, mark, usecTime(p.Timestamp).Format("15:04:05.000000"), p.Code, len(p.Data))
		if len(p.Data) > 0 {
			fmt.Fprint(w, logging.HexDump(p.Data))
		}
	}
	return nil
}

// convertFile переписывает записи в dst; расширение .zst включает сжатие.
// Метки времени и флаги сохраняются, prevLen пересчитывается.
func convertFile(src, dst string) (int, error) {
	reader, err := recorder.OpenRecordFile(src)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	writer, err := recorder.CreateRecordFile(dst, reader.Header().WorldHash)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		p, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writer.Close()
			return n, err
		}
		if err := writer.Write(&p); err != nil {
			writer.Close()
			return n, err
		}
		n++
	}
	return n, writer.Close()
}
