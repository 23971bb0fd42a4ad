package email

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/codebox/pkg/models"
)

func rfc822(lines ...string) string {
	return strings.Join(lines, "\r\n")
}

// startIMAPServer serves the in-memory backend over plain TCP.
// The backend ships with user "username"/"password" and one message from 2016.
func startIMAPServer(t *testing.T, now time.Time, messages ...string) models.IMAPLogin {
	t.Helper()

	be := memory.New()
	user, err := be.Login(nil, "username", "password")
	require.NoError(t, err)
	inbox, err := user.GetMailbox("INBOX")
	require.NoError(t, err)
	for _, msg := range messages {
		require.NoError(t, inbox.CreateMessage(nil, now, bytes.NewBufferString(msg)))
	}

	srv := server.New(be)
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return models.IMAPLogin{Server: host, Port: p, Password: "password"}
}

func plainIMAPClient() *IMAPClient {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return NewIMAPClient(IMAPConfig{
		DialTimeout: 5 * time.Second,
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
	}, testLogger())
}

func TestIMAPFetch(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	recent := rfc822(
		"From: =?UTF-8?B?UVHpgq7nrrE=?= <service@qq.com>",
		"To: username@example.org",
		"Subject: code",
		"Date: "+now.Add(-30*time.Second).Format(time.RFC1123Z),
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Your code is 771122",
	)
	newer := rfc822(
		"From: Shop <shop@example.com>",
		"Date: "+now.Add(-10*time.Second).Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"=E9=AA=8C=E8=AF=81=E7=A0=81 445566",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>ignored</p>",
		"--b1--",
		"",
	)

	login := startIMAPServer(t, now, recent, newer)
	client := plainIMAPClient()

	messages, err := client.Fetch(context.Background(), "username", login, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "Shop <shop@example.com>", messages[0].From)
	assert.Equal(t, "验证码 445566", strings.TrimSpace(messages[0].BodyText))

	assert.Equal(t, "QQ邮箱 <service@qq.com>", messages[1].From)
	assert.Equal(t, "Your code is 771122", strings.TrimSpace(messages[1].BodyText))
	assert.Equal(t, now.Add(-30*time.Second), messages[1].Date)
}

func TestIMAPFetchCapsNewest(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	var msgs []string
	for i := 0; i < 8; i++ {
		msgs = append(msgs, rfc822(
			"From: bot@example.com",
			"Date: "+now.Add(-time.Duration(60-i)*time.Second).Format(time.RFC1123Z),
			"",
			"code "+strconv.Itoa(100000+i),
		))
	}

	login := startIMAPServer(t, now, msgs...)
	messages, err := plainIMAPClient().Fetch(context.Background(), "username", login, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.Len(t, messages, MaxIMAPMessages)
	assert.Equal(t, "code 100007", strings.TrimSpace(messages[0].BodyText))
	assert.Equal(t, "code 100003", strings.TrimSpace(messages[4].BodyText))
}

func TestIMAPTestLogin(t *testing.T) {
	login := startIMAPServer(t, time.Now())
	client := plainIMAPClient()

	require.NoError(t, client.TestLogin(context.Background(), "username", login))

	login.Password = "wrong"
	assert.Error(t, client.TestLogin(context.Background(), "username", login))
}

func TestIMAPFetchCancelled(t *testing.T) {
	login := startIMAPServer(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := plainIMAPClient().Fetch(ctx, "username", login, time.Now())
	assert.Error(t, err)
}

func TestParseRawMessageCharsets(t *testing.T) {
	gbk := "From: Tencent <10000@qq.com>\r\n" +
		"Date: Wed, 01 May 2024 12:00:00 +0800\r\n" +
		"Content-Type: text/plain; charset=gbk\r\n" +
		"\r\n" +
		"\xc4\xfa\xb5\xc4\xd1\xe9\xd6\xa4\xc2\xeb\xca\xc7 123456"

	msg, err := parseRawMessage([]byte(gbk))
	require.NoError(t, err)
	assert.Equal(t, "您的验证码是 123456", msg.BodyText)
	assert.Equal(t, time.Date(2024, 5, 1, 4, 0, 0, 0, time.UTC), msg.Date)

	unknown := "From: a@b.c\r\n" +
		"Content-Type: text/plain; charset=x-made-up\r\n" +
		"\r\n" +
		"code \xff\xfe 654321"

	msg, err = parseRawMessage([]byte(unknown))
	require.NoError(t, err)
	assert.Contains(t, msg.BodyText, "654321")
	assert.NotContains(t, msg.BodyText, "\xff")
}
