package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/recorder"
)

var captureUsage = lines(
	"usage:",
	"  /capture start",
	"  /capture stop",
	"  /capture size <Mbytes>",
	"  /capture rate <seconds>",
	"  /capture stats",
	"  /capture file <filename>",
	"  /capture save <filename>",
)

func (d *Dispatcher) capture(c Caller, args []string) ([]string, error) {
	if !d.hasPerm(c, access.Record) {
		return denied("capture")
	}
	if len(args) == 0 {
		return captureUsage, errUsage
	}
	capt := d.opts.Recorder.Capture

	switch args[0] {
	case "start":
		if err := capt.Start(); err != nil {
			return failed(err, "Couldn't start capturing")
		}
		return lines("Capture started"), nil

	case "stop":
		if err := capt.Stop(); err != nil {
			return failed(err, "Couldn't stop capturing")
		}
		return lines("Capture stopped"), nil

	case "size":
		mb, ok := positiveArg(args)
		if !ok {
			return captureUsage, errUsage
		}
		capt.SetMaxBytes(mb * 1024 * 1024)
		return lines(fmt.Sprintf("Capture size set to %d", mb)), nil

	case "rate":
		seconds, ok := positiveArg(args)
		if !ok {
			return captureUsage, errUsage
		}
		capt.SetUpdateInterval(time.Duration(seconds) * time.Second)
		return lines(fmt.Sprintf("Capture rate set to %d", seconds)), nil

	case "stats":
		return captureStats(capt.Stats()), nil

	case "file":
		if len(args) < 2 {
			return captureUsage, errUsage
		}
		if err := capt.SaveFile(args[1]); err != nil {
			return fileFailure(err, args[1])
		}
		return lines(fmt.Sprintf("Capturing to file: %s", args[1])), nil

	case "save":
		if len(args) < 2 {
			return captureUsage, errUsage
		}
		summary, err := capt.SaveBuffer(args[1])
		if err != nil {
			if errors.Is(err, recorder.ErrNotActive) {
				return failed(err, "No captured buffer to save")
			}
			return fileFailure(err, args[1])
		}
		return lines(fmt.Sprintf("Captured buffer saved to: %s", summary.Path)), nil
	}
	return captureUsage, errUsage
}

func captureStats(s recorder.Stats) []string {
	out := make([]string, 0, 4)
	if s.Capturing {
		out = append(out, "Capturing enabled")
	} else {
		out = append(out, "Capturing disabled")
	}
	if s.Mode == recorder.StraightToFile {
		out = append(out, fmt.Sprintf("  saved: %d bytes, %d packets, file = %s",
			s.FileBytes, s.FilePackets, s.FileName))
	} else {
		out = append(out, fmt.Sprintf("  buffered: %d bytes, %d packets, time = %d",
			s.BufferBytes, s.BufferPackets, int(s.Span.Seconds())))
	}
	out = append(out, fmt.Sprintf("  size = %d Mbytes, rate = %d seconds",
		s.MaxBytes/(1024*1024), int(s.UpdateInterval.Seconds())))
	return out
}

// fileFailure ответ на ошибку открытия или записи файла
func fileFailure(err error, name string) ([]string, error) {
	switch {
	case errors.Is(err, recorder.ErrModeConflict):
		return failed(err, "Server is in replay mode")
	case errors.Is(err, recorder.ErrBadFileName):
		return failed(err, "Invalid file name: %s", name)
	default:
		return failed(err, "Could not open for writing: %s", name)
	}
}

func positiveArg(args []string) (int, bool) {
	if len(args) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
