// Configuration for RxGo
// 全局配置（来自环境变量）与调用级选项
package rxgo

import (
	"context"
	"log/slog"
	"sync"

	"github.com/caarlos0/env/v6"

	"github.com/xinjiayu/rxgo/v2/internal/rxlog"
)

// ============================================================================
// 全局配置
// ============================================================================

// Config 全局配置，默认值来自环境变量
type Config struct {
	// BufferSize 通道适配器的缓冲区大小
	BufferSize int `env:"RXGO_BUFFER_SIZE" envDefault:"16"`

	// ThreadPoolWorkers 默认线程池的worker数量，<=0 时使用 runtime.NumCPU()
	ThreadPoolWorkers int `env:"RXGO_THREAD_POOL_WORKERS" envDefault:"0"`
}

// LoadConfig 从环境变量读取配置
func LoadConfig() (Config, error) {
	var conf Config
	if err := env.Parse(&conf); err != nil {
		return Config{BufferSize: 16}, err
	}
	return conf, nil
}

var (
	globalConfigOnce sync.Once
	globalConfig     Config
)

// GlobalConfig 返回进程级配置，首次调用时读取环境变量
func GlobalConfig() Config {
	globalConfigOnce.Do(func() {
		conf, err := LoadConfig()
		if err != nil {
			rxlog.Warn("invalid rxgo environment, using defaults", "err", err)
		}
		globalConfig = conf
	})
	return globalConfig
}

// SetLogger 替换库内部使用的日志器，nil 恢复为环境变量配置的默认日志器
func SetLogger(logger *slog.Logger) {
	rxlog.SetDefault(logger)
}

// ============================================================================
// 调用级选项
// ============================================================================

// Option 配置选项
type Option func(*options)

// options 调用级配置
type options struct {
	bufferSize int
	scheduler  Scheduler
	ctx        context.Context
}

func newOptions(opts ...Option) *options {
	o := &options{
		bufferSize: GlobalConfig().BufferSize,
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bufferSize < 0 {
		o.bufferSize = 0
	}
	return o
}

// WithBufferSize 设置通道缓冲区大小
func WithBufferSize(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// WithScheduler 设置发射使用的调度器
func WithScheduler(scheduler Scheduler) Option {
	return func(o *options) { o.scheduler = scheduler }
}

// WithContext 设置上下文，取消时释放订阅
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}
