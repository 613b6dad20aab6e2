package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Printer writes semantically styled text to a writer. Colors follow the
// capabilities of the writer unless forced with PlainText or WithColors.
type Printer struct {
	writer       io.Writer
	renderer     *lipgloss.Renderer
	theme        Theme
	profile      termenv.Profile
	forceProfile bool
	silent       bool

	mu sync.Mutex
}

// NewPrinter creates a new Printer with the given options.
// By default, it writes to os.Stdout.
func NewPrinter(options ...Option) *Printer {
	p := &Printer{
		writer: os.Stdout,
	}

	for _, opt := range options {
		opt(p)
	}

	p.renderer = lipgloss.NewRenderer(p.writer)
	if p.forceProfile {
		p.renderer.SetColorProfile(p.profile)
	}
	p.theme = DefaultTheme(p.renderer)

	return p
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.writer
}

// Print outputs text without any semantic styling.
func (p *Printer) Print(text string) {
	p.output(SemanticPlain, text, false)
}

// Printf outputs formatted text without any semantic styling.
func (p *Printer) Printf(format string, args ...interface{}) {
	p.output(SemanticPlain, fmt.Sprintf(format, args...), false)
}

// Println outputs text with a newline without any semantic styling.
func (p *Printer) Println(text string) {
	p.output(SemanticPlain, text, true)
}

// Info outputs informational text with info styling.
func (p *Printer) Info(text string) {
	p.output(SemanticInfo, text, true)
}

// Error outputs error text with error styling (red).
func (p *Printer) Error(text string) {
	p.output(SemanticError, text, true)
}

// Render styles text without writing it.
func (p *Printer) Render(semantic SemanticType, text string) string {
	return p.theme.Style(semantic).Render(text)
}

func (p *Printer) output(semantic SemanticType, text string, addNewline bool) {
	if p.silent {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result := text
	if semantic != SemanticPlain {
		result = p.theme.Style(semantic).Render(text)
	}
	if addNewline && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}

	_, _ = fmt.Fprint(p.writer, result) // Ignore write errors for output operations
}
