package matrix

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"

	"ev/internal/commands"
	"ev/internal/output"
	"ev/pkg/evtypes"
)

const (
	infoIndent = 4
	// maxBodyWidth is the widest message body room-events prints.
	maxBodyWidth = 72
)

// Commands returns the Matrix commands in registration order.
func (a *Account) Commands() []evtypes.Command {
	roomOption := func(desc string) evtypes.Option {
		return evtypes.Option{Name: "room-id", Description: desc, Completer: a.completeRoomID}
	}

	return []evtypes.Command{
		&commands.Func{
			Cmd:     "client-details",
			Help:    "Print client information - no request is made to the server",
			Handler: a.clientDetails,
		},
		&commands.Func{
			Cmd:     "rooms",
			Help:    "List currently known joined rooms - no request is made to the server",
			Handler: a.listRooms,
		},
		&commands.Func{
			Cmd:     "room-details",
			Help:    "Get details about a room - no request is made to the server",
			Args:    []evtypes.Option{roomOption("The id of the room to get the details for")},
			Handler: a.roomDetails,
		},
		&commands.Func{
			Cmd:     "room-events",
			Help:    "List events in a room",
			Args:    []evtypes.Option{roomOption("The id of the room to show the events for")},
			Handler: a.roomEvents,
		},
		&commands.Func{
			Cmd:     "room-load-past-events",
			Help:    "Fetch past room events from the database",
			Args:    []evtypes.Option{roomOption("The id of the room to load the events for")},
			Handler: a.roomLoadPastEvents,
		},
		&commands.Func{
			Cmd:  "room-get-event",
			Help: "Get the given event from the server",
			Args: []evtypes.Option{
				roomOption("The id of the room to get the event for"),
				{Name: "event-id", Description: "The id of the event to get"},
			},
			Handler: a.roomGetEvent,
		},
		&commands.Func{
			Cmd:     "get-pushers",
			Help:    "Get the currently configured push servers from the server",
			Handler: a.getPushers,
		},
		&commands.Func{
			Cmd:     "remove-pusher",
			Help:    "Remove the pusher with the given id",
			Args:    []evtypes.Option{{Name: "number", Description: "The number of the pusher"}},
			Handler: a.removePusher,
		},
	}
}

// completeRoomID offers the joined room ids matching the first length
// runes of word.
func (a *Account) completeRoomID(word string, length int) []string {
	typed := []rune(word)
	if length < len(typed) {
		typed = typed[:length]
	}

	var ids []string
	for _, id := range a.RoomIDs() {
		if strings.HasPrefix(id, string(typed)) {
			ids = append(ids, id)
		}
	}
	return ids
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// fingerprint groups a key in blocks of four characters.
func fingerprint(key string) string {
	var sb strings.Builder
	runes := []rune(key)
	for i := 0; i < len(runes); i += 4 {
		end := min(i+4, len(runes))
		sb.WriteString(string(runes[i:end]))
		sb.WriteString(" ")
	}
	return sb.String()
}

func (a *Account) clientDetails(_ []string) (*bytes.Buffer, error) {
	a.mu.RLock()
	client := a.client
	loggingIn := a.loggingIn
	key := a.fingerprint
	a.mu.RUnlock()

	userID, homeserver, deviceID := a.username, a.homeserver, ""
	loggedIn := false
	if client != nil {
		if id := client.UserID(); id != "" {
			userID = id
		}
		homeserver = client.Homeserver()
		deviceID = client.DeviceID()
		loggedIn = client.LoggedIn()
	}

	builder := output.NewBuilder().SetIndent(infoIndent)
	builder.Add("User", userID)
	builder.Add("Home server", homeserver)
	if deviceID == "" {
		builder.Add("Device ID", "not logged in")
	} else {
		builder.Add("Device ID", deviceID)
		builder.Add("Fingerprint", fingerprint(key))
	}
	builder.Add("Logged in", yesNo(loggedIn))
	if !loggedIn {
		builder.Add("Logging in", yesNo(loggingIn))
	}
	return builder.End(), nil
}

func (a *Account) listRooms(_ []string) (*bytes.Buffer, error) {
	out := &bytes.Buffer{}

	rooms := a.Rooms()
	if len(rooms) == 0 {
		out.WriteString("No joined rooms\n")
		return out, nil
	}
	for _, room := range rooms {
		fmt.Fprintf(out, "  Room name: %s, room id: %s\n", room.Name, room.ID)
	}
	return out, nil
}

// lookupRoom resolves the room-id argument.
func (a *Account) lookupRoom(args []string, required int) (Room, error) {
	if len(args) < required {
		return Room{}, evtypes.ArgumentError("Not enough arguments")
	}
	room, ok := a.Room(args[0])
	if !ok {
		return Room{}, evtypes.NotFoundError("Room %s not found", args[0])
	}
	return room, nil
}

func (a *Account) roomDetails(args []string) (*bytes.Buffer, error) {
	room, err := a.lookupRoom(args, 1)
	if err != nil {
		return nil, err
	}

	encrypted := "No"
	if room.Encrypted {
		encrypted = "Yes"
	}

	builder := output.NewBuilder().SetIndent(infoIndent)
	builder.Add("Room Id", room.ID)
	builder.Add("Name", room.Name)
	builder.AddNonEmpty("Topic", room.Topic)
	builder.Add("Encrypted", encrypted)
	builder.Addf("Unread notifications", "%d", room.UnreadNotifications)
	builder.Addf("Events", "%d", len(room.Events))
	return builder.End(), nil
}

// displayBody makes a message body safe and short enough for a listing.
func displayBody(body string) string {
	body = ansi.Strip(body)
	body = strings.ReplaceAll(body, "\n", " ")
	return ansi.Truncate(body, maxBodyWidth, "…")
}

func (a *Account) roomEvents(args []string) (*bytes.Buffer, error) {
	room, err := a.lookupRoom(args, 1)
	if err != nil {
		return nil, err
	}

	builder := output.NewBuilder().SetIndent(infoIndent)
	builder.Addf("Events", "%d", len(room.Events))
	for i := range room.Events {
		event := &room.Events[i]

		builder.AddNewline()
		builder.Add("Event Id", event.EventID)
		builder.Add("Type", event.Type)
		if event.IsMessage() {
			msgType := event.MsgType()
			builder.Add("Content-Type", msgType)
			if msgType == MsgTypeText {
				builder.Add("Body", displayBody(event.Body()))
			}
		}
	}
	return builder.End(), nil
}

func (a *Account) roomLoadPastEvents(args []string) (*bytes.Buffer, error) {
	room, err := a.lookupRoom(args, 1)
	if err != nil {
		return nil, err
	}

	added, err := a.loadPastEvents(room.ID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load events: %w", err)
	}
	if added == 0 {
		return bytes.NewBufferString("No events loaded from database"), nil
	}
	return bytes.NewBufferString(fmt.Sprintf("Loaded %d events from database", added)), nil
}

func (a *Account) roomGetEvent(args []string) (*bytes.Buffer, error) {
	room, err := a.lookupRoom(args, 2)
	if err != nil {
		return nil, err
	}
	eventID := args[1]

	out := &bytes.Buffer{}
	var event *Event
	for i := range room.Events {
		if room.Events[i].EventID == eventID {
			event = &room.Events[i]
			fmt.Fprintf(out, "  Found cached event %s\n", eventID)
			break
		}
	}

	if event == nil {
		client := a.currentClient()
		if client == nil {
			return nil, ErrNotLoggedIn
		}
		ctx, cancel := a.requestContext()
		defer cancel()

		event, err = client.RoomEvent(ctx, room.ID, eventID)
		if IsNotFound(err) {
			return nil, evtypes.NotFoundError("Event %s not found", eventID)
		}
		if err != nil {
			return nil, fmt.Errorf("Failed to get event: %w", err)
		}
	}

	fmt.Fprintf(out, "    Message type: %s\n", event.Type)
	fmt.Fprintf(out, "       Sender id: %s\n", event.Sender)
	if msgType := event.MsgType(); msgType != "" {
		fmt.Fprintf(out, "       Text message: %s\n", displayBody(event.Body()))
	}
	return out, nil
}

func (a *Account) getPushers(_ []string) (*bytes.Buffer, error) {
	client := a.currentClient()
	if client == nil {
		return nil, ErrNotLoggedIn
	}
	ctx, cancel := a.requestContext()
	defer cancel()

	a.mu.Lock()
	a.pushers, a.havePushers = nil, false
	a.mu.Unlock()

	pushers, err := client.Pushers(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to get pushers: %w", err)
	}

	a.mu.Lock()
	a.pushers, a.havePushers = pushers, true
	a.mu.Unlock()

	if len(pushers) == 0 {
		return bytes.NewBufferString("    No pushers configured\n"), nil
	}

	builder := output.NewBuilder().SetIndent(infoIndent)
	for i, pusher := range pushers {
		if i != 0 {
			builder.AddNewline()
		}
		builder.Addf("Pusher Id", "%d", i)
		builder.Add("Kind", pusher.Kind)
		builder.Add("App Display Name", pusher.AppDisplayName)
		builder.Add("App Id", pusher.AppID)
		builder.Add("Device Display Name", pusher.DeviceDisplayName)
		builder.Add("Lang", pusher.Lang)
		builder.Add("Profile Tag", pusher.ProfileTag)
		builder.Add("Pushkey", pusher.Pushkey)
		if pusher.Kind == PusherKindHTTP {
			builder.Add("Url", pusher.Data.URL)
		}
	}
	return builder.End(), nil
}

// parseLeadingInt parses the integer at the start of s, ignoring what
// follows it. ok is false when s does not start with a number.
func parseLeadingInt(s string) (n int64, ok bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (a *Account) removePusher(args []string) (*bytes.Buffer, error) {
	if len(args) < 1 {
		return nil, evtypes.ArgumentError("Not enough arguments")
	}
	id, ok := parseLeadingInt(args[0])
	if !ok {
		return nil, evtypes.ArgumentError("No numbers found in '%s'", args[0])
	}

	a.mu.RLock()
	pushers, havePushers := a.pushers, a.havePushers
	client := a.client
	a.mu.RUnlock()

	if !havePushers {
		return nil, evtypes.ArgumentError("No pushers - did you run /get-pushers ?")
	}
	if id < 0 || id >= int64(len(pushers)) {
		return nil, evtypes.ArgumentError("Invalid pusher id '%d'", id)
	}
	if client == nil {
		return nil, ErrNotLoggedIn
	}

	ctx, cancel := a.requestContext()
	defer cancel()
	if err := client.RemovePusher(ctx, pushers[id]); err != nil {
		return nil, fmt.Errorf("Failed to remove pusher: %w", err)
	}
	return bytes.NewBufferString(fmt.Sprintf("Removed pusher %d", id)), nil
}
