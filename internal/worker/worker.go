// Package worker запускает периодические задачи движка бронирований по cron-расписанию
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/region23/pnplive/internal/config"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// Completer завершает оплаченные сессии, время которых вышло
type Completer interface {
	AutoCompleteDue(ctx context.Context, now time.Time) (completed int, failed int, err error)
}

// Reconciler освобождает окна, занятые отмененными бронированиями
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// OnlineRefresher пересчитывает онлайн-статус моделей
type OnlineRefresher interface {
	RefreshOnlineStatus(ctx context.Context) (offline int, online int, err error)
}

// Job - именованная периодическая задача
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Worker выполняет задачи; запуски одной задачи не перекрываются
type Worker struct {
	cron    *cron.Cron
	jobs    []Job
	log     *logger.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[string]bool
}

// New создает worker со стандартным набором задач
func New(cfg config.WorkerConfig, completer Completer, reconciler Reconciler, refresher OnlineRefresher, log *logger.Logger) (*Worker, error) {
	w := newWorker(log)

	jobs := []Job{
		{
			Name: "auto_complete",
			Spec: cfg.AutoCompleteSpec,
			Run: func(ctx context.Context) error {
				completed, failed, err := completer.AutoCompleteDue(ctx, time.Now())
				if err != nil {
					return err
				}
				if completed > 0 || failed > 0 {
					w.log.Info("Auto-complete finished",
						logger.Int("completed", completed),
						logger.Int("failed", failed))
				}
				return nil
			},
		},
		{
			Name: "reconcile_windows",
			Spec: cfg.ReconcileSpec,
			Run: func(ctx context.Context) error {
				_, err := reconciler.Reconcile(ctx)
				return err
			},
		},
		{
			Name: "online_status",
			Spec: cfg.OnlineStatusSpec,
			Run: func(ctx context.Context) error {
				_, _, err := refresher.RefreshOnlineStatus(ctx)
				return err
			},
		},
		{
			Name: "runtime_stats",
			Spec: "@every 1m",
			Run: func(ctx context.Context) error {
				var m runtime.MemStats
				runtime.ReadMemStats(&m)
				metrics.MemoryUsage.Set(float64(m.Alloc))
				metrics.GoroutinesCount.Set(float64(runtime.NumGoroutine()))
				return nil
			},
		},
	}

	for _, job := range jobs {
		if err := w.Add(job); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func newWorker(log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		cron:    cron.New(),
		log:     log.Named("worker"),
		timeout: time.Minute,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]bool),
	}
}

// Add регистрирует задачу. Пустой spec отключает задачу
func (w *Worker) Add(job Job) error {
	if job.Spec == "" {
		w.log.Info("Job disabled", logger.String("job", job.Name))
		return nil
	}

	if _, err := w.cron.AddFunc(job.Spec, func() { w.RunNow(job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, job.Name, err)
	}
	w.jobs = append(w.jobs, job)
	return nil
}

// Jobs возвращает зарегистрированные задачи
func (w *Worker) Jobs() []Job {
	return w.jobs
}

// RunNow выполняет задачу синхронно. Если предыдущий запуск еще идет, запуск пропускается
func (w *Worker) RunNow(job Job) bool {
	w.mu.Lock()
	if w.active[job.Name] {
		w.mu.Unlock()
		metrics.RecordJobRun(job.Name, "skipped")
		return false
	}
	w.active[job.Name] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.active, job.Name)
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		w.log.Error("Job failed",
			logger.String("job", job.Name),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err))
		metrics.RecordJobRun(job.Name, "error")
		return true
	}

	w.log.Debug("Job finished",
		logger.String("job", job.Name),
		logger.Duration("duration", time.Since(start)))
	metrics.RecordJobRun(job.Name, "success")
	return true
}

// Start запускает расписание
func (w *Worker) Start() {
	w.cron.Start()
	w.log.Info("Worker started", logger.Int("jobs", len(w.jobs)))
}

// Stop останавливает расписание и ждет завершения текущих запусков или отмены ctx
func (w *Worker) Stop(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		return ctx.Err()
	}
}
