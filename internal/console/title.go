package console

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// SetTitle sets the terminal window title when w is a terminal.
func SetTitle(w io.Writer, title string) {
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		return
	}
	fmt.Fprintf(w, "\x1b]2;%s\x07", title)
}
