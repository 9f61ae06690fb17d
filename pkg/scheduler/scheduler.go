// Package scheduler 提供定时任务调度功能，使用 gocron/v2 库.
//
// 每个任务按名称注册，调度器记录最近一次运行的时间、耗时与错误，
// 供 /api/v1/scheduler/jobs 展示.
package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yeisme/tagstore/pkg/log"
)

// JobStatus 表示任务的状态类型.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled" // 等待下次运行
	StatusRunning   JobStatus = "running"   // 正在运行
	StatusError     JobStatus = "error"     // 上次运行失败
)

// Task 任务函数. ctx 在调度器关闭时取消.
type Task func(ctx context.Context) error

// JobInfo 任务信息.
type JobInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	CronExpr    string        `json:"cron_expr"`
	NextRun     time.Time     `json:"next_run"`
	LastRun     time.Time     `json:"last_run"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
	LastTook    time.Duration `json:"last_took"`
	Runs        int           `json:"runs"`
	Failures    int           `json:"failures"`
	Status      JobStatus     `json:"status"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

type entry struct {
	job  gocron.Job
	info JobInfo
}

// Scheduler 对 gocron.Scheduler 的封装.
type Scheduler struct {
	cron   gocron.Scheduler
	mu     sync.RWMutex
	jobs   map[string]*entry
	names  map[uuid.UUID]string
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 创建调度器，gocron 自身的日志转发到 zerolog.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLogger(log.NewGocronLogger()))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   s,
		jobs:   make(map[string]*entry),
		names:  make(map[uuid.UUID]string),
		logger: log.Component("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddCron 按 cron 表达式注册任务. 同一任务不会并发运行，
// 上一次还没结束时本次触发被跳过. ctx 中的值会传给 task.
func (s *Scheduler) AddCron(ctx context.Context, name, cronExpr string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job with name %s already exists", name)
	}

	runCtx := context.WithoutCancel(ctx)

	j, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() { s.run(runCtx, name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	nextRun, _ := j.NextRun()

	s.jobs[name] = &entry{
		job: j,
		info: JobInfo{
			ID:        j.ID().String(),
			Name:      name,
			CronExpr:  cronExpr,
			NextRun:   nextRun,
			Status:    StatusScheduled,
			CreatedAt: time.Now(),
		},
	}
	s.names[j.ID()] = name

	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("Added cron job")

	return nil
}

// run 执行任务并记录结果，panic 视为失败.
func (s *Scheduler) run(ctx context.Context, name string, task Task) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	start := time.Now()
	s.update(name, func(info *JobInfo) {
		info.Status = StatusRunning
		info.LastRun = start
	})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in job: %v", r)
			}
		}()

		return task(ctx)
	}()

	took := time.Since(start)

	s.update(name, func(info *JobInfo) {
		info.Runs++
		info.LastTook = took

		if err != nil {
			info.Failures++
			info.Status = StatusError
			info.Error = err.Error()

			return
		}

		info.Status = StatusScheduled
		info.Error = ""
		info.LastSuccess = time.Now()
	})

	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Dur("took", took).Msg("Job failed")
		return
	}

	s.logger.Debug().Str("job", name).Dur("took", took).Msg("Job finished")
}

func (s *Scheduler) update(name string, fn func(info *JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		fn(&e.info)
	}
}

// RunNow 立即触发一次任务，不影响原有计划.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("job with name %s does not exist", name)
	}

	return e.job.RunNow()
}

// GetJobInfos 返回按名称排序的任务信息.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))

	for _, e := range s.jobs {
		info := e.info
		if next, err := e.job.NextRun(); err == nil {
			info.NextRun = next
		}

		out = append(out, info)
	}

	slices.SortFunc(out, func(a, b JobInfo) int { return cmp.Compare(a.Name, b.Name) })

	return out
}

// RemoveJob 按 id 删除任务.
func (s *Scheduler) RemoveJob(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name, ok := s.names[id]; ok {
		delete(s.jobs, name)
		delete(s.names, id)
	}

	return s.cron.RemoveJob(id)
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.GetJobInfos())).Msg("Starting scheduler")
	s.cron.Start()
}

// StopJobs 停止调度但保留任务，可再次 Start.
func (s *Scheduler) StopJobs() error {
	return s.cron.StopJobs()
}

// JobsWaitingInQueue 等待执行的任务数.
func (s *Scheduler) JobsWaitingInQueue() int {
	return s.cron.JobsWaitingInQueue()
}

// Shutdown 取消正在运行的任务并关闭调度器.
func (s *Scheduler) Shutdown() error {
	s.logger.Info().Msg("Stopping scheduler")
	s.cancel()

	return s.cron.Shutdown()
}
