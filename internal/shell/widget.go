package shell

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// Widget is a line editor that yields one submitted line per Readline call.
type Widget interface {
	Readline() (string, error)
	Close() error
}

// WidgetConfig is what a fresh widget is built from.
type WidgetConfig struct {
	Prompt string
	// History seeds the editor's up/down history, oldest first.
	History []string
	// Complete is invoked on Tab with the line and the rune cursor.
	Complete func(line string, cursor int) Completion
}

// WidgetFactory creates a widget. The session builds a new one per line.
type WidgetFactory func(cfg WidgetConfig) (Widget, error)

// NewReadlineFactory returns a factory of readline based widgets reading
// stdin and writing stdout. All widgets share one reader of stdin that
// hands over at most one line per read, so the input behind a submitted
// line stays queued for the next widget.
func NewReadlineFactory(stdin io.Reader, stdout io.Writer) WidgetFactory {
	return newReadlineFactory(stdin, stdout, nil)
}

func newReadlineFactory(stdin io.Reader, stdout io.Writer, tune func(*readline.Config)) WidgetFactory {
	pump := newInputPump(stdin)

	return func(cfg WidgetConfig) (Widget, error) {
		ac := &autoCompleter{prompt: cfg.Prompt, complete: cfg.Complete}
		in := pump.reader()

		rlCfg := &readline.Config{
			Prompt:                 cfg.Prompt,
			AutoComplete:           ac,
			HistoryLimit:           len(cfg.History) + 1,
			DisableAutoSaveHistory: true,
			InterruptPrompt:        "^C",
			Stdin:                  in,
			Stdout:                 stdout,
		}
		if tune != nil {
			tune(rlCfg)
		}
		rl, err := readline.NewEx(rlCfg)
		if err != nil {
			_ = in.Close()
			return nil, fmt.Errorf("failed to create line editor: %w", err)
		}
		ac.out = rl.Stdout()

		for _, line := range cfg.History {
			_ = rl.SaveHistory(line)
		}
		return &readlineWidget{Instance: rl, in: in}, nil
	}
}

// readlineWidget closes its pump reader along with the editor. readline
// only closes its own stdin wrapper, which would leave a pending read
// waiting on the pump.
type readlineWidget struct {
	*readline.Instance
	in *pumpReader
}

func (w *readlineWidget) Close() error {
	_ = w.in.Close()
	return w.Instance.Close()
}

// autoCompleter bridges the completion engine to readline's Tab handling.
type autoCompleter struct {
	prompt   string
	complete func(line string, cursor int) Completion
	out      io.Writer
}

// Do implements readline.AutoCompleter. A single candidate is returned as
// the text to insert. Several candidates are printed below the line and
// nothing is returned, which leaves the edit buffer untouched.
func (a *autoCompleter) Do(line []rune, pos int) ([][]rune, int) {
	if a.complete == nil {
		return nil, 0
	}

	c := a.complete(string(line), pos)
	switch c.Kind {
	case CompletionInsert:
		return [][]rune{[]rune(c.Insert)}, 0
	case CompletionList:
		if a.out != nil {
			// The refreshing writer wipes the prompt line before writing and
			// redraws it afterwards, so the old line is written out first.
			fmt.Fprintf(a.out, "%s%s\n%s\n", a.prompt, string(line), strings.Join(c.Candidates, " "))
		}
	}
	return nil, 0
}

// inputPump reads its source on a single goroutine and hands the data to
// whichever pumpReader asks next.
type inputPump struct {
	chunks chan []byte
	err    chan error

	mu      sync.Mutex
	pending []byte
	failed  error
}

func newInputPump(r io.Reader) *inputPump {
	p := &inputPump{
		chunks: make(chan []byte),
		err:    make(chan error, 1),
	}
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				p.chunks <- chunk
			}
			if err != nil {
				p.err <- err
				return
			}
		}
	}()
	return p
}

func (p *inputPump) reader() *pumpReader {
	return &pumpReader{pump: p, done: make(chan struct{})}
}

type pumpReader struct {
	pump *inputPump
	done chan struct{}
	once sync.Once
}

// Read returns queued input up to and including the first line end.
func (r *pumpReader) Read(b []byte) (int, error) {
	p := r.pump

	select {
	case <-r.done:
		return 0, io.EOF
	default:
	}

	p.mu.Lock()
	if len(p.pending) > 0 {
		n := p.takeLine(b)
		p.mu.Unlock()
		return n, nil
	}
	if p.failed != nil {
		err := p.failed
		p.mu.Unlock()
		return 0, err
	}
	p.mu.Unlock()

	select {
	case chunk := <-p.chunks:
		p.mu.Lock()
		defer p.mu.Unlock()
		p.pending = append(p.pending, chunk...)
		select {
		case <-r.done:
			return 0, io.EOF
		default:
		}
		return p.takeLine(b), nil
	case err := <-p.err:
		p.mu.Lock()
		p.failed = err
		p.mu.Unlock()
		return 0, err
	case <-r.done:
		return 0, io.EOF
	}
}

// takeLine moves pending input into b, stopping after the first line end.
// p.mu must be held.
func (p *inputPump) takeLine(b []byte) int {
	limit := len(p.pending)
	if i := bytes.IndexAny(p.pending, "\r\n"); i >= 0 {
		limit = i + 1
	}
	n := copy(b, p.pending[:limit])
	p.pending = p.pending[n:]
	return n
}

func (r *pumpReader) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}
