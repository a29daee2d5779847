package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"小写不变", "demo@example.test", "demo@example.test"},
		{"大写转小写", "Demo@Example.Test", "demo@example.test"},
		{"去除空白", "  demo@example.test  ", "demo@example.test"},
		{"去除尖括号", "<demo@example.test>", "demo@example.test"},
		{"组合", "  <Demo@Example.Test>  ", "demo@example.test"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeAddress(tc.input))
		})
	}
}

func TestValidateAddress(t *testing.T) {
	t.Run("合法地址", func(t *testing.T) {
		for _, addr := range []string{
			"demo@example.test",
			"a.b-c@mail.example.test",
			"user+tag@example.test",
		} {
			assert.NoError(t, ValidateAddress(addr), addr)
		}
	})

	t.Run("非法地址", func(t *testing.T) {
		for _, addr := range []string{
			"",
			"no-at-sign",
			"@example.test",
			"user@",
			"user@@example.test",
			"user@-bad.test",
			"user@bad-.test",
			"user@bad..test",
		} {
			assert.Error(t, ValidateAddress(addr), addr)
		}
	})

	t.Run("超长地址", func(t *testing.T) {
		long := strings.Repeat("a", MaxAddressLength) + "@example.test"
		assert.ErrorIs(t, ValidateAddress(long), ErrAddressTooLong)
	})

	t.Run("本地部分超长", func(t *testing.T) {
		long := strings.Repeat("a", MaxLocalPartLength+1) + "@example.test"
		assert.ErrorIs(t, ValidateAddress(long), ErrLocalPartTooLong)
	})
}

func TestAddressDomain(t *testing.T) {
	assert.Equal(t, "example.test", AddressDomain("demo@example.test"))
	assert.Equal(t, "example.test", AddressDomain("<Demo@EXAMPLE.TEST>"))
	assert.Equal(t, "", AddressDomain("no-at-sign"))
	assert.Equal(t, "", AddressDomain("trailing@"))
}

func TestMailboxExpired(t *testing.T) {
	now := time.Now().UTC()
	mailbox := &Mailbox{ExpiresAt: now}

	// 到期时刻即视为过期
	assert.True(t, mailbox.Expired(now))
	assert.True(t, mailbox.Expired(now.Add(time.Second)))
	assert.False(t, mailbox.Expired(now.Add(-time.Second)))
}
