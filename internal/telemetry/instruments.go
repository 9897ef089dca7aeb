package telemetry

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Исходы операций для меток метрик
const (
	OutcomeOK           = "ok"
	OutcomeDenied       = "denied"
	OutcomeInsufficient = "insufficient"
	OutcomeUnavailable  = "unavailable"
	OutcomeError        = "error"
)

// Instruments — счётчики ядра. Нулевой указатель безопасен: запись игнорируется.
type Instruments struct {
	ledgerApply    otelmetric.Int64Counter
	quotaDecisions otelmetric.Int64Counter
	storageRetries otelmetric.Int64Counter
}

// NewInstruments создаёт счётчики от глобального MeterProvider.
// До вызова Init глобальный провайдер делегирует в no-op, так что в тестах
// счётчики ничего не пишут.
func NewInstruments() *Instruments {
	meter := otel.Meter(instrumentationName)
	ins := &Instruments{}

	var err error
	if ins.ledgerApply, err = meter.Int64Counter("ledger_apply_total",
		otelmetric.WithDescription("Ledger apply calls by reason and outcome")); err != nil {
		log.WithError(err).Warn("Счётчик ledger_apply_total не создан")
	}
	if ins.quotaDecisions, err = meter.Int64Counter("quota_decisions_total",
		otelmetric.WithDescription("Quota decisions by command and outcome")); err != nil {
		log.WithError(err).Warn("Счётчик quota_decisions_total не создан")
	}
	if ins.storageRetries, err = meter.Int64Counter("storage_retries_total",
		otelmetric.WithDescription("Retried storage operations")); err != nil {
		log.WithError(err).Warn("Счётчик storage_retries_total не создан")
	}
	return ins
}

// LedgerApply учитывает вызов Apply.
func (i *Instruments) LedgerApply(ctx context.Context, reason, outcome string) {
	if i == nil || i.ledgerApply == nil {
		return
	}
	i.ledgerApply.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("reason", reason),
		attribute.String("outcome", outcome),
	))
}

// QuotaDecision учитывает решение трекера квот.
func (i *Instruments) QuotaDecision(ctx context.Context, command, outcome string) {
	if i == nil || i.quotaDecisions == nil {
		return
	}
	i.quotaDecisions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

// StorageRetry подходит как RetryPolicy.OnRetry.
func (i *Instruments) StorageRetry(op string, _ int, _ error) {
	if i == nil || i.storageRetries == nil {
		return
	}
	i.storageRetries.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("op", op),
	))
}
