package rxlog

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	testdir := t.TempDir()

	var (
		output    = path.Join(testdir, "output.log")
		errOutput = path.Join(testdir, "err_output.log")
	)

	conf := Config{
		Level:       "info",
		Output:      output,
		ErrorOutput: errOutput,
		Format:      "json",
		DisableTime: true,
		MaxSize:     1,
	}

	logger := slog.New(NewHandlerFromConfig(conf))

	logger.Debug("some debug", "hello", "rxgo")
	logger.Info("some info", "hello", "rxgo")

	logger.Error("read error", "err", io.EOF, "hello", "rxgo")

	log, err := os.ReadFile(output)
	require.NoError(t, err)

	data := make(map[string]string)
	require.NoError(t, json.Unmarshal(log, &data))
	assert.Equal(t, "some info", data["msg"])
	assert.Equal(t, "rxgo", data["hello"])
	assert.NotContains(t, data, "time")

	errlog, err := os.ReadFile(errOutput)
	require.NoError(t, err)

	data = make(map[string]string)
	require.NoError(t, json.Unmarshal(errlog, &data))
	assert.Equal(t, "read error", data["msg"])
	assert.Equal(t, "EOF", data["err"])
	assert.Equal(t, "rxgo", data["hello"])
}

func TestTextHandler(t *testing.T) {
	var out, errOut bytes.Buffer
	h := &handler{
		out: &splitWriter{writer: &out, errWriter: &errOut},
	}
	h.Handler = formattedHandler(h.out, "text", slog.LevelDebug, false, true)

	logger := slog.New(h).With("scheduler", "pool")
	logger.Debug("worker started", "id", 1)
	logger.Error("action panicked", "err", io.ErrUnexpectedEOF)

	assert.Contains(t, out.String(), "worker started")
	assert.Contains(t, out.String(), "scheduler=pool")
	assert.NotContains(t, out.String(), "action panicked")
	assert.Contains(t, errOut.String(), "action panicked")
}

func TestParseToSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseToSlogLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseToSlogLevel("info"))
	assert.Equal(t, slog.LevelError, parseToSlogLevel("error"))
	assert.Equal(t, slog.LevelWarn, parseToSlogLevel("unknown"))
}

func TestParseConfig(t *testing.T) {
	t.Setenv("RXGO_LOG_LEVEL", "debug")
	t.Setenv("RXGO_LOG_FORMAT", "json")

	conf, err := ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", conf.Level)
	assert.Equal(t, "json", conf.Format)
	assert.Equal(t, 100, conf.MaxSize)

	t.Setenv("RXGO_LOG_MAX_SIZE", "not-a-number")
	conf, err = ParseConfig()
	assert.Error(t, err)
	assert.Equal(t, "warn", conf.Level)
}

func TestSetDefault(t *testing.T) {
	var out bytes.Buffer
	SetDefault(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetDefault(nil)

	Debug("hello", "k", "v")
	Error("boom", io.EOF)

	assert.Contains(t, out.String(), "msg=hello k=v")
	assert.Contains(t, out.String(), "msg=boom err=EOF")
}
