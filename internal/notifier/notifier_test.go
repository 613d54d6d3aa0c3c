package notifier

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailNotify(t *testing.T) {
	m := NewMail("smtp.example.com", 25, "", "", "relumon@example.com", 0)
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := m.Notify(context.Background(), []string{"a@example.com", "b@example.com"}, "", "subject line", "line1\nline2")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:25", gotAddr)
	assert.Equal(t, "relumon@example.com", gotFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: subject line\r\n")
	assert.Contains(t, gotMsg, "To: a@example.com,b@example.com\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nline1\r\nline2"))
}

func TestMailNotifyOverridesFrom(t *testing.T) {
	m := NewMail("smtp.example.com", 25, "", "", "default@example.com", 0)
	var gotFrom string
	m.send = func(_ string, _ smtp.Auth, from string, _ []string, _ []byte) error {
		gotFrom = from
		return nil
	}
	require.NoError(t, m.Notify(context.Background(), []string{"a@example.com"}, "notice@example.com", "s", "b"))
	assert.Equal(t, "notice@example.com", gotFrom)
}

func TestMailNotifyErrors(t *testing.T) {
	assert.Error(t, NewMail("", 25, "", "", "x@example.com", 0).Notify(context.Background(), []string{"a@example.com"}, "", "s", "b"))

	m := NewMail("smtp.example.com", 25, "", "", "x@example.com", 0)
	assert.Error(t, m.Notify(context.Background(), nil, "", "s", "b"))

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 service not available") }
	err := m.Notify(context.Background(), []string{"a@example.com"}, "", "s", "b")
	assert.ErrorContains(t, err, "421")
}

func TestMailNotifyHonoursContext(t *testing.T) {
	m := NewMail("smtp.example.com", 25, "", "", "x@example.com", 0)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Notify(ctx, []string{"a@example.com"}, "", "s", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailNotifyGivesUpOnSilentServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	m := NewMail(host, port, "", "", "x@example.com", 100*time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- m.Notify(context.Background(), []string{"a@example.com"}, "", "s", "b")
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("mail delivery still blocked on a server that never greets")
	}
}

func TestTelegramNotify(t *testing.T) {
	tg := NewTelegram("token", "chat")
	var gotURL, gotBody string
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"ok":true}`))}, nil
	})}

	require.NoError(t, tg.Notify(context.Background(), nil, "", "subject", "body"))
	assert.Equal(t, "https://api.telegram.org/bottoken/sendMessage", gotURL)
	assert.Contains(t, gotBody, `"chat_id":"chat"`)
	assert.Contains(t, gotBody, `subject\n\nbody`)
}

func TestTelegramNotifyStatusError(t *testing.T) {
	tg := NewTelegram("token", "chat")
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader(`{"ok":false}`))}, nil
	})}
	assert.ErrorContains(t, tg.Notify(context.Background(), nil, "", "s", "b"), "telegram status 400")
}

type stubChannel struct {
	name    string
	enabled bool
	err     error
	calls   int
}

func (s *stubChannel) Name() string  { return s.name }
func (s *stubChannel) Enabled() bool { return s.enabled }
func (s *stubChannel) Notify(context.Context, []string, string, string, string) error {
	s.calls++
	return s.err
}

func TestMultiSkipsDisabledAndJoinsErrors(t *testing.T) {
	ok := &stubChannel{name: "ok", enabled: true}
	off := &stubChannel{name: "off"}
	bad := &stubChannel{name: "bad", enabled: true, err: errors.New("boom")}

	m := NewMulti(ok, off, bad)
	assert.Len(t, m.Channels(), 2)

	err := m.Notify(context.Background(), []string{"a@example.com"}, "", "s", "b")
	assert.ErrorContains(t, err, "bad: boom")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 0, off.calls)
	assert.Equal(t, 1, bad.calls)
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
