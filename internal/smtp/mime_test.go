package smtp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmail_PlainText(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"To: demo@example.test\r\n" +
		"Subject: hello\r\n" +
		"Message-ID: <abc-123@example.com>\r\n" +
		"\r\n" +
		"plain body\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)

	assert.Equal(t, "hello", parsed.Subject)
	assert.Equal(t, "sender@example.com", parsed.From)
	assert.Equal(t, "abc-123@example.com", parsed.MessageID)
	assert.Contains(t, parsed.Text, "plain body")
	assert.Empty(t, parsed.HTML)
	assert.Empty(t, parsed.Attachments)
}

func TestParseEmail_MissingMessageID(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Subject: no id\r\n" +
		"\r\n" +
		"body\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)

	// 缺失 Message-ID 时应合成一个
	assert.NotEmpty(t, parsed.MessageID)
}

func TestParseEmail_Multipart(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"To: demo@example.test\r\n" +
		"Subject: multipart\r\n" +
		"Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n" +
		"\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"text part\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html part</p>\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: application/pdf; name=\"report.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"JVBERi0xLjQ=\r\n" +
		"--BOUNDARY--\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)

	assert.Contains(t, parsed.Text, "text part")
	assert.Contains(t, parsed.HTML, "html part")
	require.Len(t, parsed.Attachments, 1)

	att := parsed.Attachments[0]
	assert.Equal(t, "report.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.False(t, att.IsInline)
	assert.Equal(t, []byte("%PDF-1.4"), att.Content)
	assert.Equal(t, int64(len(att.Content)), att.SizeBytes)
}

func TestParseEmail_InlineByContentID(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Subject: inline image\r\n" +
		"Content-Type: multipart/related; boundary=\"REL\"\r\n" +
		"\r\n" +
		"--REL\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<img src=\"cid:logo-1\">\r\n" +
		"--REL\r\n" +
		"Content-Type: image/png; name=\"logo.png\"\r\n" +
		"Content-Disposition: attachment; filename=\"logo.png\"\r\n" +
		"Content-ID: <logo-1>\r\n" +
		"\r\n" +
		"pngbytes\r\n" +
		"--REL--\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Attachments, 1)

	att := parsed.Attachments[0]
	assert.Equal(t, "logo-1", att.ContentID)
	// 虽然 disposition 是 attachment，但 HTML 以 cid: 引用，应标记为内联
	assert.True(t, att.IsInline)
}

func TestParseEmail_Malformed(t *testing.T) {
	t.Run("无法解析的头部", func(t *testing.T) {
		_, err := ParseEmail([]byte("not an email at all"))
		assert.True(t, errors.Is(err, ErrMalformedMessage))
	})

	t.Run("multipart缺少boundary", func(t *testing.T) {
		raw := []byte("From: a@b.c\r\n" +
			"Content-Type: multipart/mixed\r\n" +
			"\r\n" +
			"body\r\n")
		_, err := ParseEmail(raw)
		assert.True(t, errors.Is(err, ErrMalformedMessage))
	})
}

func TestParseEmail_EncodedSubject(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Subject: =?UTF-8?B?5L2g5aW9?=\r\n" +
		"\r\n" +
		"body\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "你好", parsed.Subject)
}

func TestParseEmail_QuotedPrintableBody(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Subject: qp\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=C3=A9\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.True(t, strings.Contains(parsed.Text, "café"))
}
