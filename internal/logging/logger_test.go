package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	t.Run("Фильтрация по уровню", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWriterLogger("capture", &buf, WARN)
		l.Info("не должно попасть")
		l.Warn("буфер переполнен: %d", 42)

		out := buf.String()
		assert.NotContains(t, out, "не должно попасть")
		assert.Contains(t, out, "[WARN] [capture] буфер переполнен: 42")
	})

	t.Run("Разбор уровня", func(t *testing.T) {
		assert.Equal(t, DEBUG, ParseLevel("debug"))
		assert.Equal(t, WARN, ParseLevel("Warning"))
		assert.Equal(t, INFO, ParseLevel("что-то"))
	})

	t.Run("Nil логгер не паникует", func(t *testing.T) {
		var l *Logger
		l.Info("ничего")
	})
}

func TestLoggerManagerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	lm.UseWriter(&buf, TRACE)

	a, err := lm.GetLogger("replay")
	require.NoError(t, err)
	b := lm.MustGetLogger("replay")
	assert.Same(t, a, b, "повторный запрос должен вернуть тот же логгер")

	require.NoError(t, lm.SetLogLevel("replay", ERROR, ERROR))
	a.Warn("скрыто")
	a.Error("видно")
	assert.False(t, strings.Contains(buf.String(), "скрыто"))
	assert.Contains(t, buf.String(), "видно")

	assert.Error(t, lm.SetLogLevel("missing", INFO, INFO))
	assert.ElementsMatch(t, []string{"replay"}, lm.ListComponents())
	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}

func TestHexDump(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))
	big := make([]byte, 1000)
	lines := strings.Count(HexDump(big), "\n")
	assert.Equal(t, 16, lines, "дамп ограничен 256 байтами")
}
