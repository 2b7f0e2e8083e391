package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callsight_webhook_events_total",
		Help: "Webhook merges processed, by outcome (created, updated, failed)",
	}, []string{"outcome"})

	SyncMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callsight_sync_merges_total",
		Help: "Bulk sync per-call merges, by outcome (created, updated, unchanged, failed)",
	}, []string{"outcome"})

	ReportsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callsight_reports_dispatched_total",
		Help: "Call reports rendered and emailed successfully",
	})

	ReportDispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callsight_report_dispatch_failures_total",
		Help: "Call report render/send attempts that failed",
	})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callsight_provider_errors_total",
		Help: "Upstream provider call failures, by operation",
	}, []string{"op"})
)
