package notify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/groupchat/internal/config"
)

// fakeSMTP accepts a single session, answers QUIT with quitReply and returns
// the DATA payload.
func fakeSMTP(t *testing.T, quitReply string) (int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		reply := func(s string) { conn.Write([]byte(s + "\r\n")) }
		reply("220 fake ready")

		var data strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					out <- data.String()
					reply("250 queued")
					continue
				}
				data.WriteString(line)
				continue
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"):
				reply("250-fake")
				reply("250 8BITMIME")
			case strings.HasPrefix(cmd, "DATA"):
				inData = true
				reply("354 go ahead")
			case strings.HasPrefix(cmd, "QUIT"):
				reply(quitReply)
				return
			default:
				reply("250 ok")
			}
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, out
}

func TestSMTPSendsVerificationCode(t *testing.T) {
	port, out := fakeSMTP(t, "221 bye")
	n := NewSMTP(config.SMTPConfig{
		Host:       "127.0.0.1",
		Port:       port,
		SenderName: "GroupChat",
		Sender:     "noreply@example.com",
		SiteURL:    "https://chat.example.com",
	})

	require.NoError(t, n.SendVerificationCode(context.Background(), "alice@example.com", "123456"))

	select {
	case msg := <-out:
		assert.Contains(t, msg, "To: <alice@example.com>")
		assert.Contains(t, msg, `From: "GroupChat" <noreply@example.com>`)
		assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8")
		assert.Contains(t, msg, "123456")
		assert.Contains(t, msg, "https://chat.example.com")
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
}

func TestSMTPDeliveryStandsWhenQuitFails(t *testing.T) {
	port, out := fakeSMTP(t, "421 closing")
	n := NewSMTP(config.SMTPConfig{
		Host:       "127.0.0.1",
		Port:       port,
		SenderName: "GroupChat",
		Sender:     "noreply@example.com",
	})

	require.NoError(t, n.SendVerificationCode(context.Background(), "alice@example.com", "654321"))

	select {
	case msg := <-out:
		assert.Contains(t, msg, "654321")
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
}

func TestSMTPReportsConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	n := NewSMTP(config.SMTPConfig{Host: "127.0.0.1", Port: port, Sender: "noreply@example.com"})
	err = n.SendVerificationCode(context.Background(), "alice@example.com", "123456")
	assert.ErrorContains(t, err, "connecting to 127.0.0.1:"+strconv.Itoa(port))
}

func TestComposeEscapesTemplateData(t *testing.T) {
	n := NewSMTP(config.SMTPConfig{SenderName: "Chat", Sender: "noreply@example.com"})
	msg, err := n.compose("bob@example.com", "Registration approved", "approval", mailData{Username: "<script>"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "&lt;script&gt;")
	assert.NotContains(t, buf.String(), "<script>")
}

func TestNewSelectsNotifier(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, Log{}, New(cfg))

	cfg.SMTP.Host = "smtp.example.com"
	assert.IsType(t, &SMTP{}, New(cfg))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.SendVerificationCode(ctx, "a@example.com", "111111"))
	require.NoError(t, r.SendVerificationCode(ctx, "a@example.com", "222222"))
	code, ok := r.LastCode("a@example.com")
	require.True(t, ok)
	assert.Equal(t, "222222", code)

	r.Fail(errors.New("relay down"))
	assert.Error(t, r.SendVerificationCode(ctx, "b@example.com", "333333"))
	_, ok = r.LastCode("b@example.com")
	assert.False(t, ok)

	go func() { _ = r.SendApprovalNotice(ctx, "a@example.com", "alice") }()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	sent, ok := r.Wait(waitCtx, KindApproval)
	require.True(t, ok)
	assert.Equal(t, "alice", sent.Username)
}
