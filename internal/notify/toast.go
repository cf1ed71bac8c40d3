package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gookit/color"
	"github.com/mattn/go-isatty"
)

// TerminalToaster prints toasts as single highlighted lines.
type TerminalToaster struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

var _ Toaster = (*TerminalToaster)(nil)

// NewTerminalToaster writes to w, or stdout when w is nil. Colors are used
// only when the writer is a terminal.
func NewTerminalToaster(w io.Writer) *TerminalToaster {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
	}
	return &TerminalToaster{w: w, color: useColor}
}

// Toast implements Toaster.
func (t *TerminalToaster) Toast(kind Kind, title, description string) {
	badge := "[" + string(kind) + "]"
	if t.color {
		badge = kindStyle(kind).Sprint(badge)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if description == "" {
		fmt.Fprintf(t.w, "%s %s\n", badge, title)
		return
	}
	fmt.Fprintf(t.w, "%s %s: %s\n", badge, title, description)
}

func kindStyle(kind Kind) color.Color {
	switch kind {
	case KindSuccess:
		return color.Green
	case KindError:
		return color.Red
	default:
		return color.Cyan
	}
}
