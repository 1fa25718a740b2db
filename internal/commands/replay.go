package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/recorder"
)

var replayUsage = lines(
	"usage:",
	"  /replay listfiles",
	"  /replay load <filename>",
	"  /replay play",
	"  /replay skip <seconds>  (+/-)",
	"  /replay stop",
	"  /replay enable | disable | reset",
)

const notLoaded = "Server is not in replay mode, or no file loaded"

func (d *Dispatcher) replay(c Caller, args []string) ([]string, error) {
	if !d.hasPerm(c, access.Replay) {
		return denied("replay")
	}
	if len(args) == 0 {
		return replayUsage, errUsage
	}
	rp := d.opts.Recorder.Replay

	switch args[0] {
	case "listfiles":
		return d.listFiles()

	case "enable":
		if err := rp.Enable(); err != nil {
			return failed(err, "Can not enable replay mode while capturing")
		}
		return lines("Replay mode enabled"), nil

	case "disable":
		rp.Disable()
		return lines("Replay mode disabled"), nil

	case "reset":
		if err := rp.Reset(); err != nil {
			return failed(err, "Server is not in replay mode")
		}
		return lines("Replay file unloaded"), nil

	case "load":
		if len(args) < 2 {
			return replayUsage, errUsage
		}
		name := args[1]
		if err := rp.LoadFile(name); err != nil {
			switch {
			case errors.Is(err, recorder.ErrNotActive):
				return failed(err, "Server is not in replay mode")
			case errors.Is(err, recorder.ErrAlreadyLoaded):
				return failed(err, "A file is already loaded, use /replay reset")
			case errors.Is(err, recorder.ErrBadFileName):
				return failed(err, "Invalid file name: %s", name)
			case errors.Is(err, recorder.ErrNoData):
				return failed(err, "No valid data: %s", name)
			case errors.Is(err, recorder.ErrMalformedFile):
				return failed(err, "Could not open header: %s", name)
			default:
				return failed(err, "Could not open: %s", name)
			}
		}
		return lines(fmt.Sprintf("Loaded file: %s", name)), nil

	case "play":
		if err := rp.Play(); err != nil {
			return failed(err, notLoaded)
		}
		return lines("Starting replay"), nil

	case "stop":
		if err := rp.Stop(); err != nil {
			return failed(err, "Replay is not playing")
		}
		return lines("Replay stopped"), nil

	case "skip":
		if len(args) < 2 {
			return replayUsage, errUsage
		}
		seconds, err := strconv.Atoi(args[1])
		if err != nil {
			return replayUsage, errUsage
		}
		if err := rp.Skip(time.Duration(seconds) * time.Second); err != nil {
			return failed(err, notLoaded)
		}
		return lines(fmt.Sprintf("Skipping %d seconds", seconds)), nil
	}
	return replayUsage, errUsage
}

// listFiles перечисляет файлы каталога записей, дополняя их данными каталога
func (d *Dispatcher) listFiles() ([]string, error) {
	files, err := d.opts.Recorder.Replay.ListFiles()
	if err != nil {
		return failed(err, "Could not read the replay directory")
	}
	if len(files) == 0 {
		return lines("No capture files"), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := make([]string, 0, len(files))
	for _, f := range files {
		line := fmt.Sprintf("  %s  %d bytes", f.Name, f.Size)
		if !f.Valid {
			line += "  (invalid)"
		}
		if d.opts.Catalog != nil {
			if rec, err := d.opts.Catalog.FindByName(ctx, f.Name); err == nil {
				line += fmt.Sprintf("  %d packets, saved %s", rec.Packets, rec.FinishedAt.Format(time.DateTime))
			}
		}
		out = append(out, line)
	}
	return out, nil
}
