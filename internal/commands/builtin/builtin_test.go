package builtin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ev/internal/commands"
	"ev/internal/history"
	"ev/internal/testutils"
	"ev/internal/version"
	"ev/pkg/evtypes"
)

func newBuiltins(t *testing.T, extra ...evtypes.Command) (*commands.Registry, *history.Store, *int) {
	t.Helper()
	registry := commands.NewRegistry()
	require.NoError(t, registry.Register(extra...))

	hist := history.New(10)
	quits := 0
	require.NoError(t, registry.Register(Commands(Deps{
		Commands: registry,
		History:  hist,
		Quit:     func() { quits++ },
	})...))
	return registry, hist, &quits
}

func TestCommands_Order(t *testing.T) {
	registry, _, _ := newBuiltins(t)
	assert.Equal(t, []string{"help", "history", "version", "quit"}, registry.Names())
}

func TestHelpCommand_List(t *testing.T) {
	rooms := testutils.NewMockCommand("rooms")
	registry, _, _ := newBuiltins(t, rooms)
	help, ok := registry.Lookup("help")
	require.True(t, ok)

	out, err := help.Invoke(nil)
	require.NoError(t, err)

	expected := "      rooms : Mock command: rooms\n" +
		"       help : Show this help\n" +
		"    history : Print command history\n" +
		"    version : Show version information\n" +
		"       quit : Quit the application\n"
	assert.Equal(t, expected, out.String())
}

func TestHelpCommand_Describe(t *testing.T) {
	getEvent := testutils.NewMockCommand("room-get-event",
		evtypes.Option{Name: "room-id", Description: "The room id"},
		evtypes.Option{Name: "event-id", Description: "The event id"},
	)
	registry, _, _ := newBuiltins(t, getEvent)
	help, _ := registry.Lookup("help")

	out, err := help.Invoke([]string{"room-get-event"})
	require.NoError(t, err)

	expected := "  room-get-event - Mock command: room-get-event\n" +
		"\n" +
		"  Usage:\n" +
		"    /room-get-event room-id event-id\n" +
		"     room-id : The room id\n" +
		"    event-id : The event id\n" +
		"\n"
	assert.Equal(t, expected, out.String())
}

func TestHelpCommand_DescribeOptional(t *testing.T) {
	registry, _, _ := newBuiltins(t)
	help, _ := registry.Lookup("help")

	out, err := help.Invoke([]string{"/help"})
	require.NoError(t, err)

	expected := "  help - Show this help\n" +
		"\n" +
		"  Usage:\n" +
		"    /help [command]\n" +
		"    command : The command to print help for\n" +
		"\n"
	assert.Equal(t, expected, out.String())
}

func TestHelpCommand_DescribeWithoutOptions(t *testing.T) {
	registry, _, _ := newBuiltins(t)
	help, _ := registry.Lookup("help")

	out, err := help.Invoke([]string{"quit"})
	require.NoError(t, err)
	assert.Equal(t, "  quit - Quit the application\n\n  Usage:\n    /quit\n\n", out.String())
}

func TestHelpCommand_Unknown(t *testing.T) {
	registry, _, _ := newBuiltins(t)
	help, _ := registry.Lookup("help")

	out, err := help.Invoke([]string{"bogus"})
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, evtypes.ErrNotFound))
	assert.Equal(t, "Unknown command bogus", err.Error())
}

func TestHelpCommand_Completer(t *testing.T) {
	registry, _, _ := newBuiltins(t, testutils.NewMockCommand("rooms"), testutils.NewMockCommand("room-details"))
	help, _ := registry.Lookup("help")
	opt := help.Options()[0]

	assert.True(t, opt.Optional)
	assert.Equal(t, []string{"rooms", "room-details", "help", "history", "version", "quit"}, opt.Complete("", 0))
	assert.Equal(t, []string{"rooms", "room-details"}, opt.Complete("roo", 3))
	assert.Equal(t, []string{"help", "history"}, opt.Complete("hxyz", 1))
	assert.Nil(t, opt.Complete("zz", 2))
}

func TestHistoryCommand(t *testing.T) {
	registry, hist, _ := newBuiltins(t)
	historyCmd, _ := registry.Lookup("history")

	out, err := historyCmd.Invoke(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out.String())

	hist.Record("/rooms")
	hist.Record("/help")
	hist.Record("/rooms")
	hist.Record("/history")

	out, err = historyCmd.Invoke(nil)
	require.NoError(t, err)
	assert.Equal(t, "   2 /help\n   3 /rooms\n   4 /history\n", out.String())
}

func TestQuitCommand(t *testing.T) {
	registry, _, quits := newBuiltins(t)
	quit, _ := registry.Lookup("quit")

	out, err := quit.Invoke(nil)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, 1, *quits)

	noop := &QuitCommand{}
	out, err = noop.Invoke(nil)
	assert.NoError(t, err)
	assert.NotNil(t, out)
}

func TestVersionCommand(t *testing.T) {
	orig := []string{version.Version, version.GitCommit, version.BuildDate}
	version.SetBuildInfo("0.3.0", "unknown", "unknown")
	t.Cleanup(func() { version.SetBuildInfo(orig[0], orig[1], orig[2]) })

	out, err := (&VersionCommand{}).Invoke(nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "     Version : 0.3.0\n")
	assert.NotContains(t, out.String(), "Commit")
	assert.Contains(t, out.String(), "Platform : ")

	version.SetBuildInfo("bad", "unknown", "unknown")
	_, err = (&VersionCommand{}).Invoke(nil)
	assert.Error(t, err)
}
