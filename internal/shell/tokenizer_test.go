package shell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ev/pkg/evtypes"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []string
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"single", "/rooms", []string{"/rooms"}},
		{"extra spaces", "  /room-details   !abc:example.org  ", []string{"/room-details", "!abc:example.org"}},
		{"double quotes", `/help "room details"`, []string{"/help", "room details"}},
		{"single quotes", `/x 'a "b" c'`, []string{"/x", `a "b" c`}},
		{"escaped space", `/x a\ b`, []string{"/x", "a b"}},
		{"empty quoted token", `/x ""`, []string{"/x", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := Split(tt.line)
			require.NoError(t, err)
			if len(tt.expected) == 0 {
				assert.Empty(t, args)
				return
			}
			assert.Equal(t, tt.expected, args)
		})
	}
}

func TestSplit_Malformed(t *testing.T) {
	for _, line := range []string{`/x "abc`, `/x 'abc`, `/x abc\`} {
		t.Run(line, func(t *testing.T) {
			_, err := Split(line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, evtypes.ErrMalformedInput))
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		cursor int
		args   []string
		token  int
		offset int
		word   string
	}{
		{
			name: "empty line", line: "", cursor: 0,
			args: nil, token: 0, offset: 0, word: "",
		},
		{
			name: "inside command token", line: "/room-d", cursor: 7,
			args: []string{"/room-d"}, token: 0, offset: 7, word: "/room-d",
		},
		{
			name: "marker only", line: "/", cursor: 1,
			args: []string{"/"}, token: 0, offset: 1, word: "/",
		},
		{
			name: "after trailing space", line: "/room-details ", cursor: 14,
			args: []string{"/room-details"}, token: 1, offset: 0, word: "",
		},
		{
			name: "inside first argument", line: "/room-details !", cursor: 15,
			args: []string{"/room-details", "!"}, token: 1, offset: 1, word: "!",
		},
		{
			name: "cursor in middle of token", line: "/room-details !abc", cursor: 16,
			args: []string{"/room-details", "!abc"}, token: 1, offset: 2, word: "!abc",
		},
		{
			name: "cursor on boundary before a token", line: "/room-get-event  $ev", cursor: 16,
			args: []string{"/room-get-event", "$ev"}, token: 1, offset: 0, word: "$ev",
		},
		{
			name: "second argument", line: "/room-get-event !r $e", cursor: 21,
			args: []string{"/room-get-event", "!r", "$e"}, token: 2, offset: 2, word: "$e",
		},
		{
			name: "unterminated quote fails", line: `/help "ro`, cursor: 9,
			args: nil, token: 0, offset: 0, word: "",
		},
		{
			name: "cursor inside a closed quote", line: `/x "my room" y`, cursor: 7,
			args: []string{"/x", "my room", "y"}, token: 1, offset: 3, word: "my room",
		},
		{
			name: "cursor after a backslash", line: `/x a\ b`, cursor: 5,
			args: []string{"/x", "a b"}, token: 1, offset: 1, word: "a b",
		},
		{
			name: "backslash starting a token", line: `/x \ b`, cursor: 4,
			args: []string{"/x", " b"}, token: 1, offset: 0, word: " b",
		},
		{
			name: "trailing backslash fails", line: `/x a\`, cursor: 5,
			args: nil, token: 0, offset: 0, word: "",
		},
		{
			name: "multibyte runes", line: "/x ñandú", cursor: 8,
			args: []string{"/x", "ñandú"}, token: 1, offset: 5, word: "ñandú",
		},
		{
			name: "cursor clamped", line: "/rooms", cursor: 99,
			args: []string{"/rooms"}, token: 0, offset: 6, word: "/rooms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := Tokenize(tt.line, tt.cursor)
			if tt.args == nil && tt.line != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, evtypes.ErrMalformedInput))
				return
			}
			require.NoError(t, err)
			if len(tt.args) == 0 {
				assert.Empty(t, tc.Args)
			} else {
				assert.Equal(t, tt.args, tc.Args)
			}
			assert.Equal(t, tt.token, tc.Cursor)
			assert.Equal(t, tt.offset, tc.Offset)
			assert.Equal(t, tt.word, tc.Word())
		})
	}
}

func TestTokenize_NoLeakAfterFailure(t *testing.T) {
	_, err := Tokenize(`/x "unterminated`, 5)
	require.Error(t, err)

	tc, err := Tokenize("/rooms", 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"/rooms"}, tc.Args)
	assert.Equal(t, 0, tc.Cursor)
	assert.Equal(t, 6, tc.Offset)
}
