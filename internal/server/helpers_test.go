package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/Tyrowin/groupchat/internal/clock"
	"github.com/Tyrowin/groupchat/internal/config"
	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/notify"
	"github.com/Tyrowin/groupchat/internal/store"
)

const (
	testOrigin   = "http://localhost:8080"
	testPassword = "secret1"
)

type envelopeBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	t     *testing.T
	clock *clock.Fake
	mail  *notify.Recorder
	svc   *chat.Service
	hub   *Hub
	http  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := chat.NewRegistry(store.NewMemory(), clk)
	require.NoError(t, reg.Load(context.Background()))

	hub := NewHub(NewMetrics(prometheus.NewRegistry()))
	go hub.Run()

	mail := notify.NewRecorder()
	svc := chat.NewService(reg,
		chat.WithNotifier(mail),
		chat.WithBroadcaster(hub),
		chat.WithHashCost(bcrypt.MinCost),
	)

	srv := New(config.Default(), svc, hub, prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		_ = hub.Shutdown(time.Second)
		ts.Close()
		svc.Wait()
	})

	return &fixture{t: t, clock: clk, mail: mail, svc: svc, hub: hub, http: ts}
}

func (f *fixture) do(method, path, token string, body any) (*http.Response, envelopeBody) {
	f.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(f.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.http.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	var env envelopeBody
	require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func (f *fixture) post(path, token string, body any) (*http.Response, envelopeBody) {
	f.t.Helper()
	return f.do(http.MethodPost, path, token, body)
}

func (f *fixture) get(path, token string) (*http.Response, envelopeBody) {
	f.t.Helper()
	return f.do(http.MethodGet, path, token, nil)
}

// register signs username up through the API. The clock is moved past every
// per-address window first since all test requests share one address.
func (f *fixture) register(username string) (model.Profile, string) {
	f.t.Helper()
	f.clock.Advance(25 * time.Hour)

	email := username + "@example.com"
	resp, env := f.post("/api/send-verification-code", "", map[string]string{"email": email})
	require.Equal(f.t, http.StatusOK, resp.StatusCode, env.Message)

	code, ok := f.mail.LastCode(email)
	require.True(f.t, ok)

	resp, env = f.post("/api/register", "", map[string]any{
		"username":          username,
		"email":             email,
		"password":          testPassword,
		"verification_code": code,
	})
	require.Equal(f.t, http.StatusOK, resp.StatusCode, env.Message)

	var data authData
	require.NoError(f.t, json.Unmarshal(env.Data, &data))
	return data.User, data.Token
}

func (f *fixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/ws"
}

func (f *fixture) dial(token, origin string) (*websocket.Conn, *http.Response, error) {
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(f.wsURL(), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// connect opens an event stream for userID and waits until the hub owns it.
func (f *fixture) connect(userID, token string) *websocket.Conn {
	f.t.Helper()

	conn, _, err := f.dial(token, testOrigin)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(f.t, func() bool { return f.hub.Connected(userID) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (chat.EventKind, json.RawMessage) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Event chat.EventKind  `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	return ev.Event, ev.Data
}
