package matrix

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"ev/internal/config"
)

func testConfig(t *testing.T, homeserver string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Matrix: config.MatrixConfig{
			Username:   "@alice:example.org",
			Password:   "secret",
			Homeserver: homeserver,
		},
	}
}

// quitSignal records calls of the quit side channel.
type quitSignal struct {
	ch    chan struct{}
	calls atomic.Int32
}

func newQuitSignal() *quitSignal {
	return &quitSignal{ch: make(chan struct{})}
}

func (q *quitSignal) quit() {
	if q.calls.Add(1) == 1 {
		close(q.ch)
	}
}

func (q *quitSignal) wait(t *testing.T) {
	t.Helper()
	select {
	case <-q.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("quit was not called")
	}
}

func newTestAccount(t *testing.T, cfg *config.Config, quit func()) *Account {
	t.Helper()
	a := New(cfg, quit,
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithClientOptions(WithRetryPolicy(noBackoff)),
		WithSyncTimeout(0),
	)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// fakeHomeserver answers login, key queries and one initial sync; later
// syncs block until the request is abandoned.
type fakeHomeserver struct {
	srv       *httptest.Server
	release   chan struct{}
	logins    atomic.Int32
	whoamis   atomic.Int32
	syncs     atomic.Int32
	loginCode int
	loginBody string
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	f := &fakeHomeserver{
		release:   make(chan struct{}),
		loginCode: http.StatusOK,
		loginBody: `{"user_id": "@alice:example.org", "access_token": "token-1", "device_id": "DEVICE"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		w.WriteHeader(f.loginCode)
		_, _ = w.Write([]byte(f.loginBody))
	})
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", func(w http.ResponseWriter, r *http.Request) {
		f.whoamis.Add(1)
		if r.Header.Get("Authorization") != "Bearer stored-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errcode": "M_UNKNOWN_TOKEN", "error": "Unknown token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"user_id": "@alice:example.org", "device_id": "STORED"}`))
	})
	mux.HandleFunc("POST /_matrix/client/v3/keys/query", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"device_keys": {"@alice:example.org": {"DEVICE": {"keys": {"ed25519:DEVICE": "abcdefghij"}}}}}`))
	})
	mux.HandleFunc("GET /_matrix/client/v3/sync", func(w http.ResponseWriter, r *http.Request) {
		if f.syncs.Add(1) > 1 {
			select {
			case <-r.Context().Done():
			case <-f.release:
			}
			return
		}
		_, _ = w.Write([]byte(`{
			"next_batch": "s1",
			"rooms": {"join": {"!a:example.org": {
				"state": {"events": [
					{"event_id": "$name", "type": "m.room.name", "state_key": "", "sender": "@bob:example.org", "content": {"name": "General"}}
				]},
				"timeline": {"events": [
					{"event_id": "$1", "type": "m.room.message", "sender": "@bob:example.org",
					 "origin_server_ts": 10, "content": {"msgtype": "m.text", "body": "hello"}}
				]},
				"unread_notifications": {"notification_count": 1}
			}}}
		}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	t.Cleanup(func() { close(f.release) })
	return f
}

func TestAccount_LoginAndSync(t *testing.T) {
	hs := newFakeHomeserver(t)
	cfg := testConfig(t, hs.srv.URL)
	quit := newQuitSignal()

	a := newTestAccount(t, cfg, quit.quit)
	a.Start(context.Background())

	require.Eventually(t, func() bool { return len(a.Rooms()) == 1 }, 5*time.Second, 10*time.Millisecond)

	room, ok := a.Room("!a:example.org")
	require.True(t, ok)
	assert.Equal(t, "General", room.Name)
	assert.Equal(t, int64(1), room.UnreadNotifications)
	require.Len(t, room.Events, 1)
	assert.Equal(t, "hello", room.Events[0].Body())

	require.Eventually(t, func() bool { return hs.syncs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Close())

	assert.Equal(t, int32(1), hs.logins.Load())
	assert.Equal(t, int32(0), quit.calls.Load())

	store, err := OpenStore(cfg.DatabasePath())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	session, err := store.LoadSession("@alice:example.org")
	require.NoError(t, err)
	assert.Equal(t, "token-1", session.AccessToken)
	assert.Equal(t, "DEVICE", session.DeviceID)
	assert.Equal(t, "s1", session.NextBatch)
	assert.Equal(t, hs.srv.URL, session.Homeserver)

	events, err := store.LoadEvents("!a:example.org")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "$1", events[0].EventID)
}

func TestAccount_ResumesStoredSession(t *testing.T) {
	hs := newFakeHomeserver(t)
	cfg := testConfig(t, "")

	store, err := OpenStore(cfg.DatabasePath())
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(Session{
		UserID:      "@alice:example.org",
		Homeserver:  hs.srv.URL,
		DeviceID:    "STORED",
		AccessToken: "stored-token",
		NextBatch:   "s0",
	}))
	require.NoError(t, store.Close())

	a := newTestAccount(t, cfg, newQuitSignal().quit)
	a.Start(context.Background())

	require.Eventually(t, func() bool { return len(a.Rooms()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), hs.logins.Load())
	assert.Equal(t, int32(1), hs.whoamis.Load())
	assert.Equal(t, "STORED", a.currentClient().DeviceID())
}

func TestAccount_ExpiredSessionLogsInAgain(t *testing.T) {
	hs := newFakeHomeserver(t)
	cfg := testConfig(t, hs.srv.URL)

	store, err := OpenStore(cfg.DatabasePath())
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(Session{
		UserID:      "@alice:example.org",
		Homeserver:  hs.srv.URL,
		DeviceID:    "OLD",
		AccessToken: "expired-token",
	}))
	require.NoError(t, store.Close())

	a := newTestAccount(t, cfg, newQuitSignal().quit)
	a.Start(context.Background())

	require.Eventually(t, func() bool { return hs.logins.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(a.Rooms()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "DEVICE", a.currentClient().DeviceID())
}

func TestAccount_BadPasswordQuits(t *testing.T) {
	hs := newFakeHomeserver(t)
	hs.loginCode = http.StatusForbidden
	hs.loginBody = `{"errcode": "M_FORBIDDEN", "error": "Invalid username or password"}`

	quit := newQuitSignal()
	a := newTestAccount(t, testConfig(t, hs.srv.URL), quit.quit)
	a.Start(context.Background())

	quit.wait(t)
	require.NoError(t, a.Close())
	assert.Equal(t, int32(1), quit.calls.Load())
	assert.Equal(t, int32(0), hs.syncs.Load())
}

func TestAccount_FatalConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *config.Config)
	}{
		{"missing username", func(cfg *config.Config) { cfg.Matrix.Username = "" }},
		{"missing password", func(cfg *config.Config) { cfg.Matrix.Password = "" }},
		{"invalid username", func(cfg *config.Config) { cfg.Matrix.Username = "alice" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://127.0.0.1:1")
			tt.modify(cfg)

			quit := newQuitSignal()
			a := newTestAccount(t, cfg, quit.quit)
			a.Start(context.Background())

			quit.wait(t)
			assert.Nil(t, a.currentClient())
		})
	}
}

func TestAccount_UnusableDatabaseQuits(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	// A regular file where the data directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0600))
	cfg.DataDir = filepath.Join(blocker, "data")

	quit := newQuitSignal()
	a := newTestAccount(t, cfg, quit.quit)
	a.Start(context.Background())

	quit.wait(t)
}

func TestAccount_CancelStopsSync(t *testing.T) {
	hs := newFakeHomeserver(t)
	ctx, cancel := context.WithCancel(context.Background())

	a := newTestAccount(t, testConfig(t, hs.srv.URL), newQuitSignal().quit)
	a.Start(ctx)
	require.Eventually(t, func() bool { return hs.syncs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-a.done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync loop did not stop")
	}
}

func TestAccount_CloseWithoutStart(t *testing.T) {
	a := New(testConfig(t, ""), nil)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestAccount_ApplySync(t *testing.T) {
	a := New(testConfig(t, ""), nil)

	resp := &SyncResponse{NextBatch: "s1"}
	resp.Rooms.Join = map[string]JoinedRoom{
		"!b:example.org": joinedRoom(
			[]Event{stateEvent(EventRoomTopic, `{"topic": "Chatter"}`), stateEvent(EventRoomEncryption, `{"algorithm": "m.megolm.v1.aes-sha2"}`)},
			[]Event{textEvent("$1", 10, "one")},
			4,
		),
		"!a:example.org": joinedRoom(nil, []Event{stateEvent(EventRoomName, `{"name": "Alpha"}`)}, 0),
	}
	a.applySync(resp)

	assert.Equal(t, []string{"!a:example.org", "!b:example.org"}, a.RoomIDs())

	alpha, _ := a.Room("!a:example.org")
	assert.Equal(t, "Alpha", alpha.Name)
	assert.False(t, alpha.Encrypted)

	beta, _ := a.Room("!b:example.org")
	assert.Equal(t, "Chatter", beta.Topic)
	assert.True(t, beta.Encrypted)
	assert.Equal(t, int64(4), beta.UnreadNotifications)
	assert.Len(t, beta.Events, 1)

	next := &SyncResponse{NextBatch: "s2"}
	next.Rooms.Join = map[string]JoinedRoom{
		"!b:example.org": joinedRoom(nil, []Event{textEvent("$1", 10, "one"), textEvent("$2", 20, "two")}, 0),
	}
	next.Rooms.Leave = map[string]struct{}{"!a:example.org": {}}
	a.applySync(next)

	assert.Equal(t, []string{"!b:example.org"}, a.RoomIDs())
	beta, _ = a.Room("!b:example.org")
	assert.Len(t, beta.Events, 2)
	assert.Equal(t, int64(0), beta.UnreadNotifications)

	a.mu.RLock()
	assert.Equal(t, "s2", a.since)
	a.mu.RUnlock()
}

func TestAccount_RoomSnapshotsAreCopies(t *testing.T) {
	a := New(testConfig(t, ""), nil)
	resp := &SyncResponse{}
	resp.Rooms.Join = map[string]JoinedRoom{"!a:example.org": joinedRoom(nil, []Event{textEvent("$1", 1, "x")}, 0)}
	a.applySync(resp)

	room, _ := a.Room("!a:example.org")
	room.Events[0].EventID = "$changed"
	room.Name = "changed"

	again, _ := a.Room("!a:example.org")
	assert.Equal(t, "$1", again.Events[0].EventID)
	assert.Empty(t, again.Name)
}

func joinedRoom(state, timeline []Event, unread int64) JoinedRoom {
	var room JoinedRoom
	room.State.Events = state
	room.Timeline.Events = timeline
	room.UnreadNotifications.NotificationCount = unread
	return room
}
