// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: чистку отметок возвратов,
// лимитеров и брошенных анимаций, плюс периодический отчёт об активности.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job — одна фоновая задача.
type Job struct {
	Name string
	Spec string // расписание cron или @every
	Run  func(ctx context.Context)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron *cron.Cron
	jobs []Job
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(jobs ...Job) *Scheduler {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить Europe/Moscow, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{}))),
		jobs: jobs,
	}
}

// Start регистрирует задачи и запускает планировщик.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.Spec, func() {
			log.WithField("job", job.Name).Debug("[CRON] Запуск задачи")
			job.Run(ctx)
		}); err != nil {
			return fmt.Errorf("задача %s: %w", job.Name, err)
		}
	}

	s.cron.Start()
	log.WithField("jobs", len(s.jobs)).Info("Планировщик задач запущен (Europe/Moscow)")
	return nil
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// cronLogger пишет ошибки cron (в том числе пойманные паники) в logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.WithField("kv", keysAndValues).Debug("[CRON] " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.WithError(err).WithField("kv", keysAndValues).Error("[CRON] " + msg)
}
