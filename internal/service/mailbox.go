package service

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/storage"
)

var (
	// ErrDomainNotAllowed 地址的域名不在受理列表中。
	ErrDomainNotAllowed = errors.New("domain not allowed")
	// ErrMailboxInactive 邮箱已被停用。
	ErrMailboxInactive = errors.New("mailbox inactive")
)

// MailboxCache 邮箱地址读穿缓存（可选，收件热路径使用）。
type MailboxCache interface {
	GetMailboxByAddress(address string) (*domain.Mailbox, error)
	CacheMailboxByAddress(mailbox *domain.Mailbox, ttl time.Duration) error
	InvalidateMailbox(address string) error
}

// MailboxService 封装邮箱生命周期业务操作。
//
// 每个归属类别对应一个固定生存时间：匿名邮箱短期存活，
// 认领邮箱长期存活。过期时间只在首次创建时确定。
type MailboxService struct {
	repo      storage.MailboxRepository
	lifetimes map[domain.OwnerClass]time.Duration
	domainSet map[string]struct{}
	cache     MailboxCache        // 可为 nil
	metrics   *monitoring.Metrics // 可为 nil
	cacheTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewMailboxService 创建邮箱业务服务。
//
// lifetimes 缺少某个类别时按匿名类别的 24 小时兜底。
func NewMailboxService(
	repo storage.MailboxRepository,
	allowedDomains []string,
	lifetimes map[domain.OwnerClass]time.Duration,
	logger *zap.Logger,
) *MailboxService {
	domainSet := make(map[string]struct{}, len(allowedDomains))
	for _, d := range allowedDomains {
		domainSet[strings.ToLower(d)] = struct{}{}
	}

	if lifetimes == nil {
		lifetimes = map[domain.OwnerClass]time.Duration{}
	}
	if _, ok := lifetimes[domain.OwnerClassAnonymous]; !ok {
		lifetimes[domain.OwnerClassAnonymous] = 24 * time.Hour
	}
	if _, ok := lifetimes[domain.OwnerClassOwned]; !ok {
		lifetimes[domain.OwnerClassOwned] = 365 * 24 * time.Hour
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &MailboxService{
		repo:      repo,
		lifetimes: lifetimes,
		domainSet: domainSet,
		cacheTTL:  5 * time.Minute,
		logger:    logger,
		now:       time.Now,
	}
}

// SetCache 设置可选的地址缓存。
func (s *MailboxService) SetCache(cache MailboxCache) {
	s.cache = cache
}

// SetMetrics 设置可选的监控指标。
func (s *MailboxService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// DomainAllowed 判断域名是否在受理列表中。
func (s *MailboxService) DomainAllowed(d string) bool {
	_, ok := s.domainSet[strings.ToLower(d)]
	return ok
}

// ResolveOrCreate 按地址解析邮箱，不存在则创建。
//
// 地址先经过规范化和校验；同一地址无论调用多少次都落到同一行：
// 并发创建撞到唯一约束时回读已有行。第二个返回值标识本次调用
// 是否新建了邮箱行，幂等读取时为 false。返回的邮箱可能已过期
// 或已停用，由调用方决定是否受理投递。
func (s *MailboxService) ResolveOrCreate(address string, ownerID *string) (*domain.Mailbox, bool, error) {
	normalized := domain.NormalizeAddress(address)
	if err := domain.ValidateAddress(normalized); err != nil {
		return nil, false, err
	}
	if !s.DomainAllowed(domain.AddressDomain(normalized)) {
		return nil, false, ErrDomainNotAllowed
	}

	if s.cache != nil {
		if cached, err := s.cache.GetMailboxByAddress(normalized); err == nil {
			return cached, false, nil
		}
	}

	existing, err := s.repo.GetMailboxByAddress(normalized)
	if err == nil {
		s.cacheMailbox(existing)
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrMailboxNotFound) {
		return nil, false, err
	}

	class := domain.OwnerClassAnonymous
	if ownerID != nil && *ownerID != "" {
		class = domain.OwnerClassOwned
	}

	now := s.now().UTC()
	mailbox := &domain.Mailbox{
		ID:         uuid.NewString(),
		Address:    normalized,
		OwnerID:    ownerID,
		OwnerClass: class,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.lifetimes[class]),
		IsActive:   true,
	}

	if err := s.repo.CreateMailbox(mailbox); err != nil {
		if errors.Is(err, storage.ErrAddressTaken) {
			// 并发创建输掉了竞争，回读赢家的行
			winner, err := s.repo.GetMailboxByAddress(normalized)
			return winner, false, err
		}
		return nil, false, err
	}

	if s.metrics != nil {
		s.metrics.MailboxesCreated.Inc()
	}
	s.logger.Info("mailbox created",
		zap.String("address", mailbox.Address),
		zap.String("owner_class", string(mailbox.OwnerClass)),
		zap.Time("expires_at", mailbox.ExpiresAt))

	s.cacheMailbox(mailbox)
	return mailbox, true, nil
}

// Get 按 ID 获取邮箱。
func (s *MailboxService) Get(id string) (*domain.Mailbox, error) {
	return s.repo.GetMailbox(id)
}

// GetByAddress 按地址获取邮箱（不创建）。
func (s *MailboxService) GetByAddress(address string) (*domain.Mailbox, error) {
	return s.repo.GetMailboxByAddress(domain.NormalizeAddress(address))
}

// ExtendExpiry 按邮箱当前归属类别的生存时间续期（从现在起算）。
func (s *MailboxService) ExtendExpiry(id string) (*domain.Mailbox, error) {
	mailbox, err := s.repo.GetMailbox(id)
	if err != nil {
		return nil, err
	}

	mailbox.ExpiresAt = s.now().UTC().Add(s.lifetimes[mailbox.OwnerClass])
	if err := s.repo.UpdateMailbox(mailbox); err != nil {
		return nil, err
	}

	s.invalidateCache(mailbox.Address)
	return mailbox, nil
}

// SetActive 启用或停用邮箱。停用的邮箱保留历史但不再受理新邮件。
func (s *MailboxService) SetActive(id string, active bool) (*domain.Mailbox, error) {
	mailbox, err := s.repo.GetMailbox(id)
	if err != nil {
		return nil, err
	}

	mailbox.IsActive = active
	if err := s.repo.UpdateMailbox(mailbox); err != nil {
		return nil, err
	}

	s.invalidateCache(mailbox.Address)
	return mailbox, nil
}

func (s *MailboxService) cacheMailbox(mailbox *domain.Mailbox) {
	if s.cache == nil {
		return
	}
	if err := s.cache.CacheMailboxByAddress(mailbox, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache mailbox", zap.String("address", mailbox.Address), zap.Error(err))
	}
}

func (s *MailboxService) invalidateCache(address string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateMailbox(address); err != nil {
		s.logger.Warn("failed to invalidate mailbox cache", zap.String("address", address), zap.Error(err))
	}
}
