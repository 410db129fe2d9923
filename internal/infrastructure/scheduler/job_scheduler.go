// Package scheduler agenda los jobs de fondo (escaneo de alertas, archivo diario) sobre gocron.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Task trabajo de fondo; el error se registra y el job sigue agendado.
type Task func(ctx context.Context) error

// JobScheduler envoltorio de gocron con registro por nombre.
type JobScheduler struct {
	scheduler gocron.Scheduler
	log       *logger.Logger
	mu        sync.Mutex
	jobs      map[string]gocron.Job
}

// New crea el scheduler (sin iniciar).
func New(log *logger.Logger) (*JobScheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &JobScheduler{scheduler: s, log: log, jobs: make(map[string]gocron.Job)}, nil
}

// Every agenda task cada interval. Una ejecución lenta no se solapa con la siguiente.
func (js *JobScheduler) Every(ctx context.Context, name string, interval time.Duration, task Task) error {
	return js.add(ctx, name, gocron.DurationJob(interval), task)
}

// Cron agenda task con una expresión cron de 5 campos (UTC).
func (js *JobScheduler) Cron(ctx context.Context, name, expr string, task Task) error {
	return js.add(ctx, name, gocron.CronJob(expr, false), task)
}

func (js *JobScheduler) add(ctx context.Context, name string, def gocron.JobDefinition, task Task) error {
	js.mu.Lock()
	defer js.mu.Unlock()
	if _, exists := js.jobs[name]; exists {
		return fmt.Errorf("job %s ya registrado", name)
	}
	job, err := js.scheduler.NewJob(
		def,
		gocron.NewTask(js.run, ctx, name, task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	js.jobs[name] = job
	js.log.Info().Str("job", name).Msg("job registrado")
	return nil
}

func (js *JobScheduler) run(ctx context.Context, name string, task Task) {
	start := time.Now()
	if err := task(ctx); err != nil {
		js.log.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(start)).Msg("job falló")
		return
	}
	js.log.Debug().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job completado")
}

// RunNow ejecuta el job registrado fuera de agenda.
func (js *JobScheduler) RunNow(name string) error {
	js.mu.Lock()
	job, ok := js.jobs[name]
	js.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s no registrado", name)
	}
	return job.RunNow()
}

// Start inicia el scheduler.
func (js *JobScheduler) Start() {
	js.log.Info().Int("jobs", len(js.jobs)).Msg("iniciando scheduler")
	js.scheduler.Start()
}

// Stop detiene el scheduler esperando los jobs en curso.
func (js *JobScheduler) Stop() error {
	js.log.Info().Msg("deteniendo scheduler")
	return js.scheduler.Shutdown()
}
