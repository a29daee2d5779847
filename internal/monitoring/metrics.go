package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 监控指标
type Metrics struct {
	// 收件管线指标
	EmailsIngested prometheus.Counter
	EmailsDropped  *prometheus.CounterVec // reason: domain / invalid_address / expired / inactive
	EmailsRejected *prometheus.CounterVec // reason: malformed / store_error

	// 邮箱指标
	MailboxesCreated prometheus.Counter
	MailboxesReaped  prometheus.Counter

	// 附件指标
	AttachmentsUploaded prometheus.Counter
	AttachmentsFailed   prometheus.Counter
	AttachmentSizeBytes prometheus.Histogram

	// 推送指标
	PushDeliveries *prometheus.CounterVec // channel + status
	PushSkipped    prometheus.Counter     // 队列满被丢弃的扇出任务

	// 回收指标
	ReaperSweeps         prometheus.Counter
	ReaperEmailsDeleted  prometheus.Counter
	ReaperObjectsDeleted prometheus.Counter

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		EmailsIngested: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_emails_ingested_total",
				Help: "Total number of emails accepted and stored",
			},
		),

		EmailsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_emails_dropped_total",
				Help: "Total number of emails silently dropped",
			},
			[]string{"reason"},
		),

		EmailsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_emails_rejected_total",
				Help: "Total number of emails rejected with an SMTP error",
			},
			[]string{"reason"},
		),

		MailboxesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_mailboxes_created_total",
				Help: "Total number of mailboxes created",
			},
		),

		MailboxesReaped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_mailboxes_reaped_total",
				Help: "Total number of expired mailboxes reclaimed",
			},
		),

		AttachmentsUploaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_attachments_uploaded_total",
				Help: "Total number of attachments uploaded to object storage",
			},
		),

		AttachmentsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_attachments_failed_total",
				Help: "Total number of attachment uploads that failed",
			},
		),

		AttachmentSizeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dropmail_attachment_size_bytes",
				Help:    "Attachment size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),

		PushDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_push_deliveries_total",
				Help: "Total number of push delivery attempts",
			},
			[]string{"channel", "status"},
		),

		PushSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_push_skipped_total",
				Help: "Total number of fan-out tasks skipped because the worker queue was full",
			},
		),

		ReaperSweeps: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_reaper_sweeps_total",
				Help: "Total number of reaper sweep passes",
			},
		),

		ReaperEmailsDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_reaper_emails_deleted_total",
				Help: "Total number of emails deleted by the reaper",
			},
		),

		ReaperObjectsDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_reaper_objects_deleted_total",
				Help: "Total number of attachment objects deleted by the reaper",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_errors_total",
				Help: "Total number of internal errors",
			},
			[]string{"component"},
		),
	}
}
