package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"scalper/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Snapshot 是某次加载得到的完整配置。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Config   *Config
}

// ChangeListener 在配置文件重载成功后触发。
type ChangeListener func(Snapshot)

// Watcher 监听配置文件变化；live 模式用它热更新风控参数。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// Watch 读取配置文件并开始监听 FS 事件。
func Watch(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	w := &Watcher{path: path, v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := w.reload(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.notify()
	})
	v.WatchConfig()
	return w, nil
}

// Snapshot 返回当前配置快照。
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe 注册监听器；只在后续重载时触发。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) notify() {
	w.mu.RLock()
	snap := w.snapshot
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = Snapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   cfg,
	}
	w.mu.Unlock()
	logger.Infof("config reloaded from %s", filepath.Base(w.path))
	return nil
}
