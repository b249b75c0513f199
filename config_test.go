package rxgo_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rxgo "github.com/xinjiayu/rxgo/v2"
)

// unsetenv 删除环境变量，测试结束后恢复
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadConfig(t *testing.T) {
	t.Run("默认值", func(t *testing.T) {
		unsetenv(t, "RXGO_BUFFER_SIZE")
		unsetenv(t, "RXGO_THREAD_POOL_WORKERS")

		conf, err := rxgo.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 16, conf.BufferSize)
		assert.Equal(t, 0, conf.ThreadPoolWorkers)
	})

	t.Run("环境变量", func(t *testing.T) {
		t.Setenv("RXGO_BUFFER_SIZE", "64")
		t.Setenv("RXGO_THREAD_POOL_WORKERS", "3")

		conf, err := rxgo.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 64, conf.BufferSize)
		assert.Equal(t, 3, conf.ThreadPoolWorkers)
	})

	t.Run("非法值回退到默认值", func(t *testing.T) {
		t.Setenv("RXGO_BUFFER_SIZE", "many")

		conf, err := rxgo.LoadConfig()
		assert.Error(t, err)
		assert.Equal(t, 16, conf.BufferSize)
	})
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	rxgo.SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer rxgo.SetLogger(nil)

	// 没有错误回调的观察者收到错误时记录警告
	rxgo.Throw[int](errBoom).Subscribe(rxgo.NewObserver[int](nil, nil, nil))

	var found map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "unhandled error in observer" {
			found = entry
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "WARN", found["level"])
	assert.Equal(t, errBoom.Error(), found["err"])
}
