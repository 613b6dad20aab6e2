package matrix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

func (a *Account) run(ctx context.Context) {
	defer close(a.done)

	store, err := OpenStore(a.dbPath)
	if err != nil {
		a.fatal("Error opening db", "error", err)
		return
	}
	a.mu.Lock()
	a.store = store
	a.mu.Unlock()

	if a.username == "" {
		a.fatal("Failed to get username", "error", "matrix.username is not set")
		return
	}
	if a.password == "" {
		a.fatal("Failed to get password", "error", "matrix.password is not set")
		return
	}
	if _, _, err := ParseUserID(a.username); err != nil {
		a.fatal(fmt.Sprintf("'%s' isn't a valid username", a.username))
		return
	}

	if !a.login(ctx, store) {
		return
	}
	a.loadFingerprint(ctx)
	a.syncLoop(ctx, store)
}

// login resumes the stored session of the user or logs in with the
// password. It returns false when the account cannot continue.
func (a *Account) login(ctx context.Context, store *Store) bool {
	a.setLoggingIn(true)
	defer a.setLoggingIn(false)

	session, err := store.LoadSession(a.username)
	switch {
	case err == nil:
		if a.resume(ctx, store, session) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	case errors.Is(err, ErrNoSession):
		a.log.Debug("No stored session, logging in", "user", a.username)
	default:
		a.log.Warn("Could not load stored session", "user", a.username, "error", err)
	}

	client := NewClient(a.homeserver, a.clientOpts...)
	if client.Homeserver() == "" {
		homeserver, err := client.DiscoverHomeserver(ctx, a.username)
		if err != nil {
			if ctx.Err() == nil {
				a.fatal(fmt.Sprintf("Could not determine homeserver for user '%s'", a.username), "error", err)
			}
			return false
		}
		client.SetHomeserver(homeserver)
	}
	a.mu.Lock()
	a.client = client
	a.since = ""
	a.mu.Unlock()

	a.log.Info("Logging in", "user", a.username)
	for {
		resp, err := client.Login(ctx, a.username, a.password, a.deviceName)
		if err == nil {
			a.log.Info("Logged in", "user", resp.UserID, "device", resp.DeviceID)
			if err := store.SaveSession(Session{
				UserID:      a.username,
				Homeserver:  client.Homeserver(),
				DeviceID:    resp.DeviceID,
				AccessToken: resp.AccessToken,
			}); err != nil {
				a.log.Warn("Could not save session", "error", err)
			}
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrBadPassword) {
			a.fatal(err.Error(), "user", a.username)
			return false
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusTooManyRequests && apiErr.StatusCode < 500 {
			a.fatal("Login failed", "user", a.username, "error", err)
			return false
		}

		a.log.Warn("Login failed, retrying", "user", a.username, "error", err)
		if err := a.limiter.Wait(ctx); err != nil {
			return false
		}
	}
}

// resume validates a stored session. A rejected token deletes the session.
func (a *Account) resume(ctx context.Context, store *Store, session *Session) bool {
	opts := append([]ClientOption{WithAccessToken(session.AccessToken, session.UserID, session.DeviceID)}, a.clientOpts...)
	client := NewClient(session.Homeserver, opts...)

	_, err := client.WhoAmI(ctx)
	if IsUnknownToken(err) {
		a.log.Info("Stored session expired", "user", a.username)
		if err := store.DeleteSession(a.username); err != nil {
			a.log.Warn("Could not delete session", "error", err)
		}
		return false
	}
	if err != nil && ctx.Err() != nil {
		return false
	}
	if err != nil {
		// The sync loop retries unreachable servers.
		a.log.Warn("Could not verify stored session", "user", a.username, "error", err)
	}

	a.mu.Lock()
	a.client = client
	a.since = session.NextBatch
	a.mu.Unlock()
	a.log.Info("Resumed session", "user", a.username, "device", session.DeviceID, "since", session.NextBatch)
	return true
}

func (a *Account) loadFingerprint(ctx context.Context) {
	client := a.currentClient()
	key, err := client.DeviceKeys(ctx, client.UserID(), client.DeviceID())
	if err != nil {
		a.log.Debug("Could not query device keys", "error", err)
		return
	}
	a.mu.Lock()
	a.fingerprint = key
	a.mu.Unlock()
}

func (a *Account) syncLoop(ctx context.Context, store *Store) {
	client := a.currentClient()

	for {
		a.mu.RLock()
		since := a.since
		a.mu.RUnlock()

		resp, err := client.Sync(ctx, since, a.syncTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsUnknownToken(err) {
				if err := store.DeleteSession(a.username); err != nil {
					a.log.Warn("Could not delete session", "error", err)
				}
				a.fatal("Access token rejected by the server", "user", a.username, "error", err)
				return
			}
			a.log.Warn("Client error", "error", err)
			if err := a.limiter.Wait(ctx); err != nil {
				return
			}
			continue
		}

		a.applySync(resp)

		for roomID, joined := range resp.Rooms.Join {
			if err := store.SaveEvents(roomID, joined.Timeline.Events); err != nil {
				a.log.Warn("Could not cache events", "room", roomID, "error", err)
			}
		}
		if err := store.SaveSession(Session{
			UserID:      a.username,
			Homeserver:  client.Homeserver(),
			DeviceID:    client.DeviceID(),
			AccessToken: client.AccessToken(),
			NextBatch:   resp.NextBatch,
		}); err != nil {
			a.log.Warn("Could not save sync token", "error", err)
		}
	}
}

// applySync merges a /sync response into the joined rooms.
func (a *Account) applySync(resp *SyncResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.since = resp.NextBatch

	roomIDs := make([]string, 0, len(resp.Rooms.Join))
	for roomID := range resp.Rooms.Join {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Strings(roomIDs)

	changed := false
	for _, roomID := range roomIDs {
		joined := resp.Rooms.Join[roomID]

		room := a.roomLocked(roomID)
		if room == nil {
			room = &Room{ID: roomID}
			a.rooms = append(a.rooms, room)
			changed = true
		}

		for i := range joined.State.Events {
			room.applyState(&joined.State.Events[i])
		}
		for i := range joined.Timeline.Events {
			event := &joined.Timeline.Events[i]
			room.applyState(event)
			if event.IsMessage() {
				a.log.Debug("text message", "room", roomID, "sender", event.Sender, "body", event.Body())
			}
		}
		room.addEvents(joined.Timeline.Events)
		room.UnreadNotifications = joined.UnreadNotifications.NotificationCount
	}

	for roomID := range resp.Rooms.Leave {
		for i, room := range a.rooms {
			if room.ID == roomID {
				a.rooms = append(a.rooms[:i], a.rooms[i+1:]...)
				changed = true
				break
			}
		}
	}

	if changed {
		a.log.Debug("Taking part in rooms", "count", len(a.rooms))
	}
}

// loadPastEvents merges the cached events of a room into it and returns how
// many were not known yet.
func (a *Account) loadPastEvents(roomID string) (int, error) {
	store := a.currentStore()
	if store == nil {
		return 0, errors.New("database not open")
	}

	events, err := store.LoadEvents(roomID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	room := a.roomLocked(roomID)
	if room == nil {
		return 0, nil
	}
	added := room.addEvents(events)
	if added > 0 {
		room.sortEvents()
	}
	return added, nil
}
