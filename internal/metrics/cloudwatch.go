// Package metrics publishes run telemetry to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"greetbot/internal/run"
	"greetbot/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ run.Metrics = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder implements run.Metrics.
//
// Metrics emitted:
//   - NotificationSent / NotificationSkipped / NotificationFailed: Dims {Occasion}, once per cycle
//   - RunDuration: no dims, once per run
//   - RunFailed: no dims, 1 on failure and 0 on success
//
// Publishing errors are logged and swallowed.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder publishing to namespace. An empty
// namespace falls back to types.MetricNamespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordReport emits the three outcome counters of one occasion cycle in a
// single PutMetricData call.
func (m *CloudWatchRecorder) RecordReport(ctx context.Context, kind types.OccasionKind, report types.DispatchReport) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimOccasion), Value: aws.String(string(kind))},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			countDatum(types.MetricNotificationSent, len(report.Sent), dims),
			countDatum(types.MetricNotificationSkipped, len(report.Skipped), dims),
			countDatum(types.MetricNotificationFailed, len(report.Failed), dims),
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record cycle metrics",
			"error", err.Error(),
			"occasion", string(kind),
		)
	}
}

// RecordRun emits the run duration in milliseconds and the failure flag.
func (m *CloudWatchRecorder) RecordRun(ctx context.Context, duration time.Duration, status run.Status) {
	failed := 0
	if status == run.StatusFailure {
		failed = 1
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricRunDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
			countDatum(types.MetricRunFailed, failed, nil),
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record run metrics",
			"error", err.Error(),
			"status", string(status),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

func countDatum(name string, n int, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(n)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

// LogRecorder implements run.Metrics by logging. Used when no CloudWatch
// client is configured.
type LogRecorder struct {
	Logger *slog.Logger
}

var _ run.Metrics = LogRecorder{}

// RecordReport logs the cycle counters.
func (l LogRecorder) RecordReport(ctx context.Context, kind types.OccasionKind, report types.DispatchReport) {
	l.logger().InfoContext(ctx, "metric",
		"occasion", string(kind),
		"sent", len(report.Sent),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
}

// RecordRun logs the run outcome.
func (l LogRecorder) RecordRun(ctx context.Context, duration time.Duration, status run.Status) {
	l.logger().InfoContext(ctx, "metric", "status", string(status), "duration_ms", duration.Milliseconds())
}

func (l LogRecorder) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
