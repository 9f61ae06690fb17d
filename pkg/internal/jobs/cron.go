// Package jobs 负责注册与实现业务定时任务（基于 scheduler）.
package jobs

import (
	"context"
	"errors"

	"github.com/yeisme/tagstore/pkg/configs"
	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/scheduler"
)

// JobBlobCollect 回收任务名，也是 POST /scheduler/jobs/run/:name 使用的名字.
const JobBlobCollect = "blob.collect"

// RegisterCronJobs 按 gc.cron 注册 blob 回收任务. gc.enabled 为 false 时不注册.
func RegisterCronJobs(sched *scheduler.Scheduler, mgr *storage.Manager, cfg configs.GCConfig) error {
	if sched == nil {
		return errors.New("scheduler is nil")
	}

	if mgr == nil {
		return errors.New("storage manager is nil")
	}

	if !cfg.Enabled {
		lg := log.Component("jobs")
		lg.Info().Msg("blob collection job disabled")
		return nil
	}

	base := ctxPkg.WithStorageManager(context.Background(), mgr)

	return sched.AddCron(base, JobBlobCollect, cfg.Cron, runBlobCollect)
}

// runBlobCollect 执行一轮回收. 每次运行读取最新配置，热更新的宽限期立即生效.
func runBlobCollect(ctx context.Context) error {
	grace := configs.GetConfig().GC.GetGracePeriod()

	_, err := service.NewCollector(ctx).Collect(ctx, grace)

	return err
}
