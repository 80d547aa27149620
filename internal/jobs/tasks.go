package jobs

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Purger — то, что умеет выбросить устаревшие записи.
type Purger interface {
	Purge() int
}

// IdlePurger забывает записи, неактивные дольше maxIdle.
type IdlePurger interface {
	PurgeIdle(maxIdle time.Duration) int
}

// AgePurger закрывает сценарии старше maxAge.
type AgePurger interface {
	Purge(maxAge time.Duration) int
}

// Gauge — именованный счётчик для отчёта об активности.
type Gauge struct {
	Name  string
	Value func() int
}

// PurgeJob раз в минуту чистит хранилище p.
func PurgeJob(name string, p Purger) Job {
	return Job{
		Name: name,
		Spec: "@every 1m",
		Run: func(context.Context) {
			if n := p.Purge(); n > 0 {
				log.WithFields(log.Fields{"job": name, "removed": n}).Debug("[CRON] Очистка")
			}
		},
	}
}

// IdlePurgeJob раз в 10 минут забывает записи, простаивающие дольше maxIdle.
func IdlePurgeJob(name string, p IdlePurger, maxIdle time.Duration) Job {
	return Job{
		Name: name,
		Spec: "@every 10m",
		Run: func(context.Context) {
			if n := p.PurgeIdle(maxIdle); n > 0 {
				log.WithFields(log.Fields{"job": name, "removed": n}).Debug("[CRON] Очистка")
			}
		},
	}
}

// ExpireJob раз в минуту закрывает сценарии старше maxAge.
func ExpireJob(name string, p AgePurger, maxAge time.Duration) Job {
	return Job{
		Name: name,
		Spec: "@every 1m",
		Run: func(context.Context) {
			if n := p.Purge(maxAge); n > 0 {
				log.WithFields(log.Fields{"job": name, "expired": n}).Info("[CRON] Брошенные сценарии закрыты")
			}
		},
	}
}

// ActivityJob раз в 10 минут пишет в лог значения счётчиков.
func ActivityJob(gauges ...Gauge) Job {
	return Job{
		Name: "activity",
		Spec: "@every 10m",
		Run: func(context.Context) {
			fields := make(log.Fields, len(gauges))
			for _, g := range gauges {
				fields[g.Name] = g.Value()
			}
			log.WithFields(fields).Info("[CRON] Активность")
		},
	}
}
