// Package metrics содержит Prometheus-метрики бота.
// Все методы безопасны для nil-получателя: в тестах метрики можно не создавать.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — набор коллекторов приложения.
type Metrics struct {
	// Ledger (RPC бэкенда)
	LedgerCalls    *prometheus.CounterVec   // вызовы по rpc и результату
	LedgerDuration *prometheus.HistogramVec // задержка вызова

	// Возврат из оплаты
	CheckoutAttempts *prometheus.CounterVec // попытки опроса: ready/not_ready/error
	CheckoutOutcomes *prometheus.CounterVec // итоги: revealed/still_processing/canceled/...
	ActivePolls      prometheus.Gauge       // циклы опроса прямо сейчас

	// Таблица лидеров
	RealtimeEvents *prometheus.CounterVec // уведомления NOTIFY по таблицам
	Refetches      *prometheus.CounterVec // перезапросы по причине и результату
	ActiveWatches  prometheus.Gauge       // открытые подписки на комнаты

	// Анимации и проверка
	FlowTerminals *prometheus.CounterVec // завершения машин по flow и edge
	Verifications *prometheus.CounterVec // valid/invalid/error

	// Telegram
	BotUpdates *prometheus.CounterVec // апдейты по типу
}

// New создаёт коллекторы с заданным namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		LedgerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_calls_total",
				Help:      "Вызовы RPC бэкенда",
			},
			[]string{"rpc", "result"},
		),
		LedgerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_call_duration_seconds",
				Help:      "Задержка RPC бэкенда (секунды)",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"rpc"},
		),
		CheckoutAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_poll_attempts_total",
				Help:      "Попытки получить запись по checkout-сессии",
			},
			[]string{"result"},
		),
		CheckoutOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_outcomes_total",
				Help:      "Итоги обработки возврата из оплаты",
			},
			[]string{"outcome"},
		),
		ActivePolls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "checkout_active_polls",
				Help:      "Активные циклы опроса",
			},
		),
		RealtimeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_events_total",
				Help:      "Уведомления об изменениях комнат",
			},
			[]string{"table"},
		),
		Refetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leaderboard_refetches_total",
				Help:      "Перезапросы таблицы лидеров",
			},
			[]string{"reason", "result"},
		),
		ActiveWatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "leaderboard_active_watches",
				Help:      "Открытые подписки на комнаты",
			},
		),
		FlowTerminals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reveal_flow_terminals_total",
				Help:      "Завершения машин показа",
			},
			[]string{"flow", "edge"},
		),
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "draw_verifications_total",
				Help:      "Проверки честности розыгрыша",
			},
			[]string{"result"},
		),
		BotUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_updates_total",
				Help:      "Апдейты Telegram",
			},
			[]string{"kind"},
		),
	}
}

// Register регистрирует коллекторы в реестре Prometheus.
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.LedgerCalls,
		m.LedgerDuration,
		m.CheckoutAttempts,
		m.CheckoutOutcomes,
		m.ActivePolls,
		m.RealtimeEvents,
		m.Refetches,
		m.ActiveWatches,
		m.FlowTerminals,
		m.Verifications,
		m.BotUpdates,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveLedgerCall записывает длительность и результат одного RPC.
func (m *Metrics) ObserveLedgerCall(rpc string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.LedgerDuration.WithLabelValues(rpc).Observe(time.Since(started).Seconds())
	m.LedgerCalls.WithLabelValues(rpc, resultLabel(err)).Inc()
}

// CheckoutAttempt считает одну попытку опроса.
func (m *Metrics) CheckoutAttempt(result string) {
	if m == nil {
		return
	}
	m.CheckoutAttempts.WithLabelValues(result).Inc()
}

// CheckoutOutcome считает итог обработки возврата.
func (m *Metrics) CheckoutOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutOutcomes.WithLabelValues(outcome).Inc()
}

// PollStarted / PollFinished ведут счётчик активных циклов.
func (m *Metrics) PollStarted() {
	if m == nil {
		return
	}
	m.ActivePolls.Inc()
}

func (m *Metrics) PollFinished() {
	if m == nil {
		return
	}
	m.ActivePolls.Dec()
}

// RealtimeEvent считает уведомление по таблице.
func (m *Metrics) RealtimeEvent(table string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(table).Inc()
}

// Refetch считает перезапрос таблицы лидеров.
func (m *Metrics) Refetch(reason, result string) {
	if m == nil {
		return
	}
	m.Refetches.WithLabelValues(reason, result).Inc()
}

// WatchOpened / WatchClosed ведут счётчик подписок.
func (m *Metrics) WatchOpened() {
	if m == nil {
		return
	}
	m.ActiveWatches.Inc()
}

func (m *Metrics) WatchClosed() {
	if m == nil {
		return
	}
	m.ActiveWatches.Dec()
}

// FlowTerminal считает завершение машины показа.
func (m *Metrics) FlowTerminal(flow, edge string) {
	if m == nil {
		return
	}
	m.FlowTerminals.WithLabelValues(flow, edge).Inc()
}

// Verification считает проверку розыгрыша.
func (m *Metrics) Verification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

// BotUpdate считает апдейт Telegram.
func (m *Metrics) BotUpdate(kind string) {
	if m == nil {
		return
	}
	m.BotUpdates.WithLabelValues(kind).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
