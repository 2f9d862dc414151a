package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Жизненный цикл аудитов
	AuditsStarted   *prometheus.CounterVec
	AnswersSet      prometheus.Counter
	AuditsFinalized *prometheus.CounterVec

	// Отказы workflow: missing_signature, already_finalized
	FinalizeRejected *prometheus.CounterVec

	// Распределение итоговых баллов подписанных аудитов
	FinalScore prometheus.Histogram

	// Remediation: сколько заявок выпущено и сколько не доставлено в модуль обслуживания
	RemediationsEmitted *prometheus.CounterVec
	RemediationsFailed  *prometheus.CounterVec
	RemediationBreaker  prometheus.Gauge

	// Расчёт по дефолтному максимуму (вопрос не найден в шаблоне)
	ScoringFallbacks prometheus.Counter

	// Archive: заполненность буфера (backpressure)
	ArchiveBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		AuditsStarted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_sessions_started_total",
			Help: "Total number of audit sessions started from a template.",
		}, []string{"template_id"}),

		AnswersSet: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "audit_answers_set_total",
			Help: "Total number of applied answer mutations.",
		}),

		AuditsFinalized: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_sessions_finalized_total",
			Help: "Total number of signed audits.",
		}, []string{"template_id"}),

		FinalizeRejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_finalize_rejected_total",
			Help: "Rejected finalization attempts by reason.",
		}, []string{"reason"}),

		FinalScore: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "audit_final_score",
			Help:    "Compliance score of finalized audits.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		RemediationsEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_remediations_emitted_total",
			Help: "Corrective work-order requests derived from critical failures.",
		}, []string{"unit_id"}),

		RemediationsFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_remediation_dispatch_failures_total",
			Help: "Remediation requests the maintenance module did not accept.",
		}, []string{"transport"}),

		RemediationBreaker: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "audit_remediation_circuit_breaker_state",
			Help: "Current state of the maintenance circuit breaker (0=closed, 1=half-open, 2=open).",
		}),

		ScoringFallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "audit_scoring_fallbacks_total",
			Help: "Questions scored with the default maximum because the template question was missing.",
		}),

		ArchiveBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "audit_archive_buffer_utilization",
			Help: "Current number of finalized audits waiting in the archive buffer.",
		}),
	}
}
