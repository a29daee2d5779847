package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage"
	"dropmail/backend/internal/storage/memory"
)

// fakeBlobs 记录被删除的对象键。
type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeBlobs) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func seedExpiredMailbox(t *testing.T, store *memory.Store, id, address string) {
	t.Helper()
	now := time.Now().UTC()

	require.NoError(t, store.CreateMailbox(&domain.Mailbox{
		ID:         id,
		Address:    address,
		OwnerClass: domain.OwnerClassAnonymous,
		CreatedAt:  now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(-24 * time.Hour),
		IsActive:   true,
	}))

	require.NoError(t, store.SaveEmail(&domain.Email{
		ID:         id + "-email",
		MailboxID:  id,
		Subject:    "old mail",
		ReceivedAt: now.Add(-30 * time.Hour),
	}))

	require.NoError(t, store.SaveAttachment(&domain.Attachment{
		ID:           id + "-att",
		EmailID:      id + "-email",
		MailboxID:    id,
		Filename:     "file.bin",
		ObjectKey:    "attachments/" + id + "/file.bin",
		UploadStatus: domain.UploadStatusUploaded,
	}))

	store.SetPushConfig(&domain.PushConfig{
		MailboxID: id,
		BotToken:  "token",
		ChatID:    "chat",
		Enabled:   true,
	})

	require.NoError(t, store.SavePushLog(&domain.PushLog{
		ID:        id + "-log",
		MailboxID: id,
		EmailID:   id + "-email",
		Channel:   domain.PushChannelMailbox,
		Status:    domain.PushStatusSuccess,
		CreatedAt: now.Add(-30 * time.Hour),
	}))
}

func TestReaper_SweepCascades(t *testing.T) {
	store := memory.NewStore()
	blobs := &fakeBlobs{}
	seedExpiredMailbox(t, store, "mb-old", "old@example.test")

	// 未过期的邮箱不应被碰
	require.NoError(t, store.CreateMailbox(&domain.Mailbox{
		ID:        "mb-live",
		Address:   "live@example.test",
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		IsActive:  true,
	}))

	r := NewReaper(store, blobs, Config{Enabled: true, BatchSize: 10}, nil, zap.NewNop())

	reaped, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	// 级联清理：附件对象、附件行、邮件、推送配置和日志、邮箱行
	assert.Equal(t, []string{"attachments/mb-old/file.bin"}, blobs.deleted)

	_, err = store.GetMailbox("mb-old")
	assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

	emails, err := store.ListEmails("mb-old")
	require.NoError(t, err)
	assert.Empty(t, emails)

	atts, err := store.ListAttachmentsByMailbox("mb-old")
	require.NoError(t, err)
	assert.Empty(t, atts)

	_, err = store.GetPushConfig("mb-old")
	assert.ErrorIs(t, err, storage.ErrPushConfigNotFound)

	logs, err := store.ListPushLogs("mb-old", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// 存活邮箱完好
	_, err = store.GetMailbox("mb-live")
	assert.NoError(t, err)
}

// fakeAddressCache 记录被失效的地址。
type fakeAddressCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (f *fakeAddressCache) InvalidateMailbox(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, address)
	return nil
}

func TestReaper_SweepInvalidatesAddressCache(t *testing.T) {
	store := memory.NewStore()
	cache := &fakeAddressCache{}
	seedExpiredMailbox(t, store, "mb-cached", "cached@example.test")

	r := NewReaper(store, nil, Config{Enabled: true, BatchSize: 10}, nil, zap.NewNop())
	r.SetCache(cache)

	reaped, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, reaped)

	// 邮箱行删除后地址缓存必须同步失效，否则缓存存活期内
	// 该地址的新来信会命中已删除的行而无法重建邮箱
	assert.Equal(t, []string{"cached@example.test"}, cache.invalidated)
}

func TestReaper_SecondSweepFindsNothing(t *testing.T) {
	store := memory.NewStore()
	seedExpiredMailbox(t, store, "mb-1", "a@example.test")
	seedExpiredMailbox(t, store, "mb-2", "b@example.test")

	r := NewReaper(store, nil, Config{Enabled: true, BatchSize: 10}, nil, zap.NewNop())

	reaped, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reaped)

	reaped, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)
}

func TestReaper_PassLimitBoundsOneSweep(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 5; i++ {
		id := string(rune('a'+i)) + "-mb"
		seedExpiredMailbox(t, store, id, id+"@example.test")
	}

	// 每批 1 个、单轮最多 2 批，一轮只能回收 2 个
	r := NewReaper(store, nil, Config{Enabled: true, BatchSize: 1, PassLimit: 2}, nil, zap.NewNop())

	reaped, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reaped)

	// 剩余的留给后续轮次
	remaining, err := store.ListExpiredMailboxes(time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestReaper_NudgeDoesNotBlock(t *testing.T) {
	store := memory.NewStore()
	r := NewReaper(store, nil, Config{Enabled: true}, nil, zap.NewNop())

	// 连续敲多次不应阻塞
	for i := 0; i < 10; i++ {
		r.Nudge()
	}
}

func TestReaper_RunHonorsKick(t *testing.T) {
	store := memory.NewStore()
	seedExpiredMailbox(t, store, "mb-kick", "kick@example.test")

	// 周期拉长，回收只能靠 Nudge 触发
	r := NewReaper(store, nil, Config{Enabled: true, Interval: time.Hour, BatchSize: 10}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	r.Nudge()

	assert.Eventually(t, func() bool {
		_, err := store.GetMailbox("mb-kick")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
