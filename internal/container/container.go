package container

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"order-lifecycle-go/config"
	"order-lifecycle-go/infrastructure/logger"
	"order-lifecycle-go/infrastructure/monitor"
	"order-lifecycle-go/internal/store"
	"order-lifecycle-go/sim"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	store   store.Store

	// 核心服务
	runner *sim.Runner

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例。configPath 为空时使用默认配置且不监听文件。
func New(configPath string) (*Container, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadWithEnvOverrides(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config failed: %w", err)
		}
	}
	return NewWithConfig(cfg, configPath), nil
}

// NewWithConfig 使用已加载的配置
func NewWithConfig(cfg config.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build(rc sim.RunnerConfig) error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildCoreServices(rc); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"env": c.cfg.Env})

	c.monitor = monitor.New(c.cfg.Metrics.Monitor)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices(rc sim.RunnerConfig) error {
	runner, st, err := sim.BuildRunner(*c.cfg, rc, c.logger, c.monitor)
	if err != nil {
		return err
	}
	c.runner = runner
	c.store = st

	c.logger.Info("core services built", zap.String("store", c.cfg.Store.Backend))
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	if c.configPath != "" {
		c.lifecycle.Register(&watcherComponent{
			watcher:  config.Watcher{Path: c.configPath, Logger: c.logger},
			onUpdate: c.applyConfig,
			logger:   c.logger,
		})
	}
}

// applyConfig 热更新：只应用订单相关配置，其他字段需重启生效
func (c *Container) applyConfig(cfg config.AppConfig) {
	c.runner.ApplyConfig(cfg)
	c.monitor.RecordConfigReload()
	c.logger.Info("orders config applied", zap.Float64("commissionRate", cfg.Orders.CommissionRate))
}

// Start 恢复已持久化的订单并启动后台组件
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	n, err := c.runner.Mgr.Recover(ctx)
	if err != nil {
		// 单条记录损坏不影响启动
		c.logger.LogError(err, map[string]interface{}{"action": "recover"})
	}
	c.logger.Info("orders recovered", zap.Int("count", n))

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	var firstErr error
	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
		firstErr = err
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "close_store"})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if c.logger != nil {
		c.logger.Close()
	}
	return firstErr
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Runner() *sim.Runner { return c.runner }

func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

func (c *Container) Logger() *logger.Logger { return c.logger }
