// Package app 提供应用程序的初始化和运行：配置、日志、追踪、指标、存储、调度器与 HTTP 服务.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/tagstore/pkg/api"
	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/jobs"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/metrics"
	"github.com/yeisme/tagstore/pkg/scheduler"
	"github.com/yeisme/tagstore/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

// App 持有运行期的全部资源.
type App struct {
	Engine *gin.Engine

	config   *configs.AppConfig
	manager  *storage.Manager
	sched    *scheduler.Scheduler
	debugEng *gin.Engine
}

// NewApp 按初始化顺序创建资源: 配置 -> 日志 -> 追踪 -> 指标 -> 存储 -> 调度器 -> 路由.
// 任一步骤失败时释放已创建的资源.
func NewApp(ctx context.Context, configPath string) (_ *App, err error) {
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	config := configs.GetConfig()

	log.Init()

	l := log.Logger()

	if !config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	if err := tracing.InitTracer(config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	a := &App{config: config}

	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.manager, err = storage.Init(ctx); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// gorm 指标在 db.New 中注册
	if config.Metrics.Enabled {
		a.debugEng = gin.New()
		_ = metrics.StartMetricsServer(config.Metrics, a.debugEng)
	}

	if a.sched, err = scheduler.NewScheduler(); err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if err = jobs.RegisterCronJobs(a.sched, a.manager, config.GC); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	a.Engine = api.NewEngine(config, a.manager, a.sched)

	return a, nil
}

// Run 启动 HTTP 服务、指标服务与调度器，ctx 取消后优雅退出.
func (a *App) Run(ctx context.Context) error {
	l := log.Logger()
	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)

	servers := []*http.Server{{
		Addr:              addr,
		Handler:           a.Engine,
		ReadHeaderTimeout: a.config.Server.ReadHeaderTimeout,
	}}

	if a.debugEng != nil {
		servers = append(servers, &http.Server{
			Addr:              a.config.Metrics.Endpoint,
			Handler:           a.debugEng,
			ReadHeaderTimeout: a.config.Server.ReadHeaderTimeout,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			l.Info().Str("addr", srv.Addr).Msg("http server listening")

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(sctx))
		}

		return errors.Join(errs...)
	})

	a.sched.Start()

	err := g.Wait()

	l.Info().Err(err).Msg("http servers stopped")

	return err
}

// Close 关闭调度器、追踪与存储.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.sched != nil {
		errs = append(errs, a.sched.Shutdown())
	}

	errs = append(errs, tracing.ShutdownTracer(ctx))

	if a.manager != nil {
		errs = append(errs, a.manager.Close(ctx))
	}

	return errors.Join(errs...)
}
