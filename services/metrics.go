package services

import "github.com/VictoriaMetrics/metrics"

var (
	contributionsAcceptedCounter = metrics.NewCounter("market_contributions_accepted_total")
	contributionsRejectedCounter = metrics.NewCounter("market_contributions_rejected_total")
	disclosuresRequestedCounter  = metrics.NewCounter("market_disclosures_requested_total")
	disclosuresCompletedCounter  = metrics.NewCounter("market_disclosures_completed_total")
	callbacksRejectedCounter     = metrics.NewCounter("market_callbacks_rejected_total")
	staleCallbacksCounter        = metrics.NewCounter("market_stale_callbacks_total")
	rateLimitedCounter           = metrics.NewCounter("market_rate_limited_total")
	adminActionsCounter          = metrics.NewCounter("market_admin_actions_total")
	storeFailuresCounter         = metrics.NewCounter("market_store_failures_total")

	currentBatchGauge = metrics.NewGauge("market_current_batch_id", nil)
)
