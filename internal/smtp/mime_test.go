package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmailPlainText(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"To: box@postdrop.local\r\n" +
		"Subject: hello\r\n" +
		"\r\n" +
		"plain body\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)

	assert.Equal(t, "hello", parsed.Subject)
	assert.Equal(t, "sender@example.com", parsed.From)
	assert.Contains(t, parsed.Text, "plain body")
	assert.Empty(t, parsed.HTML)
	assert.Empty(t, parsed.Attachments)
}

func TestParseEmailEncodedSubject(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Subject: =?UTF-8?B?aGVsbG8gd29ybGQ=?=\r\n" +
		"\r\n" +
		"body\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello world", parsed.Subject)
}

func TestParseEmailMultipartWithAttachment(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"To: box@postdrop.local\r\n" +
		"Subject: report\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n" +
		"\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"see attachment\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>see attachment</p>\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment; filename=\"data.bin\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVsbG8=\r\n" +
		"--BOUNDARY--\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)

	assert.Contains(t, parsed.Text, "see attachment")
	assert.Contains(t, parsed.HTML, "<p>see attachment</p>")
	require.Len(t, parsed.Attachments, 1)

	att := parsed.Attachments[0]
	assert.Equal(t, "data.bin", att.Filename)
	assert.Equal(t, "application/octet-stream", att.ContentType)
	assert.Equal(t, []byte("hello"), att.Content)
	assert.Equal(t, int64(5), att.Size)
}

func TestParseEmailQuotedPrintableBody(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=C3=A9\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Contains(t, parsed.Text, "café")
}

func TestParseEmailUnnamedAttachment(t *testing.T) {
	raw := []byte("Content-Type: multipart/mixed; boundary=\"B\"\r\n" +
		"\r\n" +
		"--B\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment\r\n" +
		"\r\n" +
		"data\r\n" +
		"--B--\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "unnamed", parsed.Attachments[0].Filename)
}

func TestParseEmailGarbage(t *testing.T) {
	_, err := ParseEmail([]byte("not a mail message"))
	assert.Error(t, err)
}
