package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"order-lifecycle-go/infrastructure/logger"
)

// Watcher 监听配置文件，文件被写入或替换后重新加载并回调。
// 连续的文件事件在 Debounce 时间内合并为一次加载；加载或校验失败时保留旧配置。
type Watcher struct {
	Path     string
	Debounce time.Duration
	Logger   *logger.Logger
}

// Start blocks until ctx is done; callback receives latest config on change.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Debounce <= 0 {
		w.Debounce = 100 * time.Millisecond
	}
	if w.Logger == nil {
		w.Logger = logger.NewNop()
	}
	target := filepath.Clean(w.Path)
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("stat config: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	// 监听所在目录：很多编辑器保存时先写临时文件再改名
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer.Reset(w.Debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			// 记录错误但继续监听
			w.Logger.LogError(err, map[string]interface{}{"component": "config_watcher"})
		case <-timer.C:
			if err := w.reload(onUpdate); err != nil {
				w.Logger.LogError(err, map[string]interface{}{"component": "config_watcher", "path": target})
			}
		}
	}
}

func (w Watcher) reload(onUpdate func(AppConfig)) error {
	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	w.Logger.Info("config_reloaded")
	if onUpdate != nil {
		onUpdate(cfg)
	}
	return nil
}
