package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/smtp"
	"dropmail/backend/internal/storage/memory"
)

// fakeBlobStore 内存对象存储，可按文件名注入上传失败。
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failFor map[string]error // 按文件名匹配
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string][]byte),
		failFor: make(map[string]error),
	}
}

func (f *fakeBlobStore) Put(key, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, err := range f.failFor {
		if len(key) >= len(name) && key[len(key)-len(name):] == name {
			return err
		}
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeBlobStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

// fakeNotifier 记录扇出调用。
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string // email IDs
}

func (f *fakeNotifier) Notify(mailbox *domain.Mailbox, email *domain.Email) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, email.ID)
}

func newIngestFixture(t *testing.T, blobs BlobStore) (*IngestService, *memory.Store, *fakeNotifier) {
	t.Helper()
	store := memory.NewStore()

	mailboxes := NewMailboxService(store, []string{"example.test"}, map[domain.OwnerClass]time.Duration{
		domain.OwnerClassAnonymous: 24 * time.Hour,
		domain.OwnerClassOwned:     365 * 24 * time.Hour,
	}, zap.NewNop())

	offloader := NewOffloader(store, blobs, func(filename string) string {
		return "attachments/test/" + filename
	}, zap.NewNop())

	notifier := &fakeNotifier{}
	ingest := NewIngestService(mailboxes, store, offloader, notifier, nil, nil, zap.NewNop())

	return ingest, store, notifier
}

func rawMessage(subject, body string) []byte {
	return []byte("From: sender@example.com\r\n" +
		"To: demo@example.test\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")
}

func TestIngest_CreatesMailboxAndStoresEmail(t *testing.T) {
	ingest, store, notifier := newIngestFixture(t, newFakeBlobStore())

	raw := rawMessage("first", "hello")
	err := ingest.Ingest(smtp.InboundMessage{
		From: "sender@example.com",
		To:   "demo@example.test",
		Raw:  raw,
		Size: int64(len(raw)),
	})
	require.NoError(t, err)

	// 邮箱按需创建
	mailbox, err := store.GetMailboxByAddress("demo@example.test")
	require.NoError(t, err)
	assert.Equal(t, domain.OwnerClassAnonymous, mailbox.OwnerClass)
	assert.True(t, mailbox.IsActive)

	emails, err := store.ListEmails(mailbox.ID)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "first", emails[0].Subject)
	assert.Contains(t, emails[0].Text, "hello")

	// 推送扇出被触发
	assert.Len(t, notifier.calls, 1)
}

func TestIngest_SecondDeliveryReusesMailbox(t *testing.T) {
	ingest, store, _ := newIngestFixture(t, newFakeBlobStore())

	for _, subject := range []string{"one", "two"} {
		raw := rawMessage(subject, "body")
		require.NoError(t, ingest.Ingest(smtp.InboundMessage{
			From: "sender@example.com",
			To:   "Demo@Example.Test", // 大小写不同也应落到同一邮箱
			Raw:  raw,
			Size: int64(len(raw)),
		}))
	}

	mailbox, err := store.GetMailboxByAddress("demo@example.test")
	require.NoError(t, err)

	emails, err := store.ListEmails(mailbox.ID)
	require.NoError(t, err)
	assert.Len(t, emails, 2)
}

func TestIngest_UnmanagedDomainDroppedSilently(t *testing.T) {
	ingest, store, notifier := newIngestFixture(t, newFakeBlobStore())

	raw := rawMessage("spam", "body")
	err := ingest.Ingest(smtp.InboundMessage{
		From: "sender@example.com",
		To:   "someone@elsewhere.com",
		Raw:  raw,
		Size: int64(len(raw)),
	})

	// 静默丢弃：无错误，无邮箱，无推送
	assert.NoError(t, err)
	_, err = store.GetMailboxByAddress("someone@elsewhere.com")
	assert.Error(t, err)
	assert.Empty(t, notifier.calls)
}

func TestIngest_ExpiredMailboxDropsAndKicksReaper(t *testing.T) {
	ingest, store, notifier := newIngestFixture(t, newFakeBlobStore())

	now := time.Now().UTC()
	require.NoError(t, store.CreateMailbox(&domain.Mailbox{
		ID:         "mb-expired",
		Address:    "stale@example.test",
		OwnerClass: domain.OwnerClassAnonymous,
		CreatedAt:  now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(-24 * time.Hour),
		IsActive:   true,
	}))

	kicked := false
	ingest.SetReaperKick(func() { kicked = true })

	raw := rawMessage("late", "body")
	err := ingest.Ingest(smtp.InboundMessage{
		From: "sender@example.com",
		To:   "stale@example.test",
		Raw:  raw,
		Size: int64(len(raw)),
	})
	require.NoError(t, err)

	// 过期邮箱不收新邮件，但历史行还在，回收器被提前触发
	emails, err := store.ListEmails("mb-expired")
	require.NoError(t, err)
	assert.Empty(t, emails)
	assert.True(t, kicked)
	assert.Empty(t, notifier.calls)
}

func TestIngest_InactiveMailboxDropped(t *testing.T) {
	ingest, store, _ := newIngestFixture(t, newFakeBlobStore())

	now := time.Now().UTC()
	require.NoError(t, store.CreateMailbox(&domain.Mailbox{
		ID:        "mb-off",
		Address:   "off@example.test",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		IsActive:  false,
	}))

	raw := rawMessage("ignored", "body")
	require.NoError(t, ingest.Ingest(smtp.InboundMessage{
		From: "sender@example.com",
		To:   "off@example.test",
		Raw:  raw,
		Size: int64(len(raw)),
	}))

	emails, err := store.ListEmails("mb-off")
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestIngest_MalformedMessageRejected(t *testing.T) {
	ingest, _, _ := newIngestFixture(t, newFakeBlobStore())

	err := ingest.Ingest(smtp.InboundMessage{
		From: "sender@example.com",
		To:   "demo@example.test",
		Raw:  []byte("garbage without headers"),
		Size: 22,
	})
	assert.ErrorIs(t, err, smtp.ErrMalformedMessage)
}

func TestIngest_StoredRawRoundTrips(t *testing.T) {
	ingest, store, _ := newIngestFixture(t, newFakeBlobStore())

	raw := []byte("From: sender@other.test\r\n" +
		"To: demo@example.test\r\n" +
		"Subject: Hi\r\n" +
		"Content-Type: multipart/mixed; boundary=\"B\"\r\n" +
		"\r\n" +
		"--B\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello\r\n" +
		"--B\r\n" +
		"Content-Type: text/plain; name=\"note.txt\"\r\n" +
		"Content-Disposition: attachment; filename=\"note.txt\"\r\n" +
		"\r\n" +
		"take notes" +
		"\r\n--B--\r\n")

	require.NoError(t, ingest.Ingest(smtp.InboundMessage{
		From: "sender@other.test",
		To:   "demo@example.test",
		Raw:  raw,
		Size: int64(len(raw)),
	}))

	mailbox, err := store.GetMailboxByAddress("demo@example.test")
	require.NoError(t, err)

	list, err := store.ListEmails(mailbox.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// 回读整行：原始报文字节逐字节一致，派生字段与独立解析结果吻合
	email, err := store.GetEmail(mailbox.ID, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, raw, email.Raw)
	assert.Equal(t, "sender@other.test", email.From)
	assert.Equal(t, "Hi", email.Subject)

	parsed, err := smtp.ParseEmail(raw)
	require.NoError(t, err)

	atts, err := store.ListAttachments(email.ID)
	require.NoError(t, err)
	require.Len(t, atts, len(parsed.Attachments))
	assert.Equal(t, "note.txt", atts[0].Filename)
	assert.Equal(t, int64(10), atts[0].SizeBytes)
}

func TestIngest_PartialAttachmentFailure(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.failFor["bad.bin"] = errors.New("upload refused")
	ingest, store, _ := newIngestFixture(t, blobs)

	raw := []byte("From: sender@example.com\r\n" +
		"To: demo@example.test\r\n" +
		"Subject: attachments\r\n" +
		"Content-Type: multipart/mixed; boundary=\"B\"\r\n" +
		"\r\n" +
		"--B\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body\r\n" +
		"--B\r\n" +
		"Content-Type: application/octet-stream; name=\"good.bin\"\r\n" +
		"Content-Disposition: attachment; filename=\"good.bin\"\r\n" +
		"\r\n" +
		"gooddata\r\n" +
		"--B\r\n" +
		"Content-Type: application/octet-stream; name=\"bad.bin\"\r\n" +
		"Content-Disposition: attachment; filename=\"bad.bin\"\r\n" +
		"\r\n" +
		"baddata\r\n" +
		"--B--\r\n")

	// 单个附件上传失败不应影响邮件入库
	require.NoError(t, ingest.Ingest(smtp.InboundMessage{
		From: "sender@example.com",
		To:   "demo@example.test",
		Raw:  raw,
		Size: int64(len(raw)),
	}))

	mailbox, err := store.GetMailboxByAddress("demo@example.test")
	require.NoError(t, err)

	emails, err := store.ListEmails(mailbox.ID)
	require.NoError(t, err)
	require.Len(t, emails, 1)

	atts, err := store.ListAttachments(emails[0].ID)
	require.NoError(t, err)
	require.Len(t, atts, 2)

	byName := map[string]*domain.Attachment{}
	for _, att := range atts {
		byName[att.Filename] = att
	}

	require.Contains(t, byName, "good.bin")
	require.Contains(t, byName, "bad.bin")

	assert.Equal(t, domain.UploadStatusUploaded, byName["good.bin"].UploadStatus)
	assert.NotEmpty(t, byName["good.bin"].ObjectKey)

	// 失败的附件保留元数据行，状态为 failed，无对象键
	assert.Equal(t, domain.UploadStatusFailed, byName["bad.bin"].UploadStatus)
	assert.Empty(t, byName["bad.bin"].ObjectKey)
}
