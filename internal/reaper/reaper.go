package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/storage"
)

// BlobDeleter 删除对象存储中的附件内容。
type BlobDeleter interface {
	Delete(key string) error
}

// AddressInvalidator 按地址失效邮箱缓存。
//
// 回收删除邮箱行后必须同步失效地址缓存，否则缓存 TTL 内
// 该地址的新来信会命中已删除的过期行而被静默丢弃。
type AddressInvalidator interface {
	InvalidateMailbox(address string) error
}

// Config 回收器运行参数。
type Config struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	PassLimit int
	Pause     time.Duration
}

// Reaper 过期邮箱回收器。
//
// 周期性分批回收过期邮箱：先尽力删除附件对象，再按
// 附件行、邮件、推送配置与日志、邮箱行的顺序清理数据库。
// 单轮有批次上限，批次间有停顿，避免大清理挤占在线流量。
type Reaper struct {
	store   storage.Store
	blobs   BlobDeleter        // 可为 nil
	cache   AddressInvalidator // 可为 nil
	cfg     Config
	metrics *monitoring.Metrics // 可为 nil
	logger  *zap.Logger
	kick    chan struct{}
	now     func() time.Time
}

// NewReaper 创建回收器。
func NewReaper(store storage.Store, blobs BlobDeleter, cfg Config, metrics *monitoring.Metrics, logger *zap.Logger) *Reaper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PassLimit <= 0 {
		cfg.PassLimit = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		store:   store,
		blobs:   blobs,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		kick:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

// SetCache 设置可选的地址缓存失效器。
func (r *Reaper) SetCache(cache AddressInvalidator) {
	r.cache = cache
}

// Nudge 请求尽快执行一轮回收（收件路径碰到过期邮箱时调用）。
//
// 非阻塞：已有待处理的请求时直接返回。
func (r *Reaper) Nudge() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run 周期运行回收器直到 ctx 取消。
func (r *Reaper) Run(ctx context.Context) {
	if !r.cfg.Enabled {
		r.logger.Info("reaper disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}

		reaped, err := r.Sweep(ctx)
		if err != nil {
			r.logger.Error("reaper sweep failed", zap.Error(err))
			if r.metrics != nil {
				r.metrics.ErrorsTotal.WithLabelValues("reaper").Inc()
			}
			continue
		}
		if reaped > 0 {
			r.logger.Info("reaper sweep done", zap.Int("mailboxes", reaped))
		}
	}
}

// Sweep 执行一轮回收，返回回收的邮箱数量。
//
// 一轮最多执行 PassLimit 个批次；取出的批次不满说明暂时清干净了，
// 提前结束。ctx 取消时尽快退出，下一轮接着清。
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.metrics != nil {
		r.metrics.ReaperSweeps.Inc()
	}

	total := 0
	for pass := 0; pass < r.cfg.PassLimit; pass++ {
		if ctx.Err() != nil {
			return total, nil
		}

		expired, err := r.store.ListExpiredMailboxes(r.now().UTC(), r.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if len(expired) == 0 {
			return total, nil
		}

		for i := range expired {
			if err := r.reapMailbox(&expired[i]); err != nil {
				r.logger.Warn("failed to reap mailbox",
					zap.String("address", expired[i].Address), zap.Error(err))
				continue
			}
			total++
		}

		if len(expired) < r.cfg.BatchSize {
			return total, nil
		}

		if r.cfg.Pause > 0 {
			select {
			case <-time.After(r.cfg.Pause):
			case <-ctx.Done():
				return total, nil
			}
		}
	}

	return total, nil
}

// reapMailbox 级联回收单个邮箱。
//
// 附件对象删除是尽力而为：对象存储不可用不阻塞数据库清理，
// 残留对象靠存储侧的生命周期策略兜底。
func (r *Reaper) reapMailbox(mailbox *domain.Mailbox) error {
	if r.blobs != nil {
		atts, err := r.store.ListAttachmentsByMailbox(mailbox.ID)
		if err == nil {
			for _, att := range atts {
				if att.UploadStatus != domain.UploadStatusUploaded || att.ObjectKey == "" {
					continue
				}
				if err := r.blobs.Delete(att.ObjectKey); err != nil {
					r.logger.Warn("failed to delete attachment object",
						zap.String("object_key", att.ObjectKey), zap.Error(err))
					continue
				}
				if r.metrics != nil {
					r.metrics.ReaperObjectsDeleted.Inc()
				}
			}
		}
	}

	if _, err := r.store.DeleteAttachmentsByMailbox(mailbox.ID); err != nil {
		return err
	}

	deleted, err := r.store.DeleteEmailsByMailbox(mailbox.ID)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.ReaperEmailsDeleted.Add(float64(deleted))
	}

	if err := r.store.DeletePushConfig(mailbox.ID); err != nil {
		r.logger.Warn("failed to delete push config",
			zap.String("mailbox_id", mailbox.ID), zap.Error(err))
	}
	if _, err := r.store.DeletePushLogsByMailbox(mailbox.ID); err != nil {
		r.logger.Warn("failed to delete push logs",
			zap.String("mailbox_id", mailbox.ID), zap.Error(err))
	}

	if err := r.store.DeleteMailbox(mailbox.ID); err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.InvalidateMailbox(mailbox.Address); err != nil {
			r.logger.Warn("failed to invalidate mailbox cache",
				zap.String("address", mailbox.Address), zap.Error(err))
		}
	}

	if r.metrics != nil {
		r.metrics.MailboxesReaped.Inc()
	}

	return nil
}
