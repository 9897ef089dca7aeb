// Package telemetry поднимает OpenTelemetry: метрики через Prometheus-экспортёр
// и, при заданном JAEGER_URL, трассировку в Jaeger.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"serotonyl.ru/hacker-bot/internal/config"
)

const instrumentationName = "serotonyl.ru/hacker-bot"

// Init настраивает глобальные провайдеры и возвращает функцию остановки.
// При выключенных метриках и пустом JAEGER_URL остаются no-op провайдеры.
func Init(cfg *config.Config) (func(), error) {
	if !cfg.MetricsEnabled && cfg.JaegerURL == "" {
		log.Info("Телеметрия отключена")
		return func() {}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.AppEnv),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания resource: %w", err)
	}

	var shutdownFuncs []func(context.Context) error

	if cfg.JaegerURL != "" {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
		if err != nil {
			return nil, fmt.Errorf("ошибка создания Jaeger-экспортёра: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		log.WithField("url", cfg.JaegerURL).Info("Jaeger-экспортёр запущен")
	}

	if cfg.MetricsEnabled {
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("ошибка создания Prometheus-экспортёра: %w", err)
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(exp),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		log.Info("Prometheus-экспортёр запущен")
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				log.WithError(err).Error("Ошибка остановки телеметрии")
			}
		}
	}, nil
}

// StartSpan открывает span от глобального трейсера.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// Handler отдаёт метрики в формате Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}
