package matrix

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"ev/internal/config"
	"ev/internal/logger"
	"ev/internal/version"
)

// DefaultSyncTimeout is how long the server may hold a /sync request.
const DefaultSyncTimeout = 30 * time.Second

// Room is a joined room as known from /sync and the event cache.
type Room struct {
	ID                  string
	Name                string
	Topic               string
	Encrypted           bool
	UnreadNotifications int64
	Events              []Event
}

func (r *Room) applyState(event *Event) {
	if !event.IsState() {
		return
	}
	switch event.Type {
	case EventRoomName:
		r.Name = event.content().Name
	case EventRoomTopic:
		r.Topic = event.content().Topic
	case EventRoomEncryption:
		r.Encrypted = true
	}
}

func (r *Room) hasEvent(eventID string) bool {
	for i := range r.Events {
		if r.Events[i].EventID == eventID {
			return true
		}
	}
	return false
}

// addEvents appends events not seen yet and returns how many were added.
func (r *Room) addEvents(events []Event) int {
	added := 0
	for _, event := range events {
		if event.EventID == "" || r.hasEvent(event.EventID) {
			continue
		}
		r.Events = append(r.Events, event)
		added++
	}
	return added
}

func (r *Room) sortEvents() {
	slices.SortStableFunc(r.Events, func(a, b Event) int {
		switch {
		case a.OriginServerTS < b.OriginServerTS:
			return -1
		case a.OriginServerTS > b.OriginServerTS:
			return 1
		}
		return 0
	})
}

func (r *Room) clone() Room {
	c := *r
	c.Events = slices.Clone(r.Events)
	return c
}

// Account is the logged-in Matrix user of the shell. It is safe for
// concurrent use by the sync goroutine and command handlers.
type Account struct {
	username   string
	password   string
	homeserver string
	deviceName string
	dbPath     string

	quit     func()
	quitOnce sync.Once

	clientOpts  []ClientOption
	syncTimeout time.Duration
	limiter     *rate.Limiter
	log         *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	done      chan struct{}

	mu          sync.RWMutex
	started     bool
	client      *Client
	store       *Store
	loggingIn   bool
	fingerprint string
	since       string
	rooms       []*Room
	pushers     []Pusher
	havePushers bool
}

// Option configures an Account.
type Option func(*Account)

// WithClientOptions passes options to every Client the account creates.
func WithClientOptions(opts ...ClientOption) Option {
	return func(a *Account) {
		a.clientOpts = append(a.clientOpts, opts...)
	}
}

// WithDeviceName sets the display name of devices created by login.
func WithDeviceName(name string) Option {
	return func(a *Account) {
		a.deviceName = name
	}
}

// WithSyncTimeout sets the server side timeout of /sync requests.
func WithSyncTimeout(timeout time.Duration) Option {
	return func(a *Account) {
		a.syncTimeout = timeout
	}
}

// WithLimiter sets the limiter that paces login and sync retries.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(a *Account) {
		a.limiter = limiter
	}
}

// New creates an account for the configured user without contacting the
// server. quit is called once when the account hits an unrecoverable error.
func New(cfg *config.Config, quit func(), opts ...Option) *Account {
	a := &Account{
		username:    cfg.Matrix.Username,
		password:    cfg.Matrix.Password,
		homeserver:  cfg.Matrix.Homeserver,
		deviceName:  version.Project,
		dbPath:      cfg.DatabasePath(),
		quit:        quit,
		syncTimeout: DefaultSyncTimeout,
		limiter:     rate.NewLimiter(rate.Every(5*time.Second), 3),
		log:         logger.NewStyledLogger("matrix"),
		done:        make(chan struct{}),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(a)
	}
	if a.log.GetLevel() <= log.DebugLevel {
		debugClient := &http.Client{Transport: newDebugTransport(nil, a.log)}
		a.clientOpts = append([]ClientOption{WithHTTPClient(debugClient)}, a.clientOpts...)
	}
	return a
}

// Open creates the account and starts logging in and syncing in the
// background. The background work stops when ctx is cancelled or Close is
// called.
func Open(ctx context.Context, cfg *config.Config, quit func(), opts ...Option) *Account {
	a := New(cfg, quit, opts...)
	a.Start(ctx)
	return a
}

// Start launches the login and sync goroutine. Only the first call has an effect.
func (a *Account) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		a.mu.Lock()
		a.started = true
		a.mu.Unlock()

		stop := context.AfterFunc(ctx, a.cancel)
		go func() {
			defer stop()
			a.run(a.ctx)
		}()
	})
}

// Close stops background work and closes the database.
func (a *Account) Close() error {
	a.cancel()

	a.mu.RLock()
	started := a.started
	a.mu.RUnlock()
	if started {
		<-a.done
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// Username returns the configured user id.
func (a *Account) Username() string {
	return a.username
}

// Rooms returns a snapshot of the joined rooms in join order.
func (a *Account) Rooms() []Room {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rooms := make([]Room, 0, len(a.rooms))
	for _, room := range a.rooms {
		rooms = append(rooms, room.clone())
	}
	return rooms
}

// Room returns a snapshot of the joined room with the given id.
func (a *Account) Room(roomID string) (Room, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	room := a.roomLocked(roomID)
	if room == nil {
		return Room{}, false
	}
	return room.clone(), true
}

// RoomIDs returns the ids of the joined rooms.
func (a *Account) RoomIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.rooms))
	for _, room := range a.rooms {
		ids = append(ids, room.ID)
	}
	return ids
}

func (a *Account) roomLocked(roomID string) *Room {
	for _, room := range a.rooms {
		if room.ID == roomID {
			return room
		}
	}
	return nil
}

func (a *Account) currentClient() *Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

func (a *Account) currentStore() *Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

func (a *Account) setLoggingIn(loggingIn bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggingIn = loggingIn
}

// requestContext bounds a request made on behalf of a command.
func (a *Account) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.ctx, DefaultTimeout)
}

// fatal logs msg and asks the shell to quit.
func (a *Account) fatal(msg string, keyvals ...interface{}) {
	a.log.Error(msg, keyvals...)
	a.quitOnce.Do(func() {
		if a.quit != nil {
			a.quit()
		}
	})
}
