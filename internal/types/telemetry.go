package types

// Telemetry metric names for CloudWatch.
const (
	MetricNotificationSent    = "NotificationSent"
	MetricNotificationSkipped = "NotificationSkipped"
	MetricNotificationFailed  = "NotificationFailed"
	MetricRunDuration         = "RunDuration"
	MetricRunFailed           = "RunFailed"

	DimOccasion = "Occasion"

	MetricNamespace = "Greetbot"
)
