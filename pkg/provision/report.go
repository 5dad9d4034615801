package provision

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Reporter writes one line per error or warning, coloured red or yellow.
type Reporter struct {
	W     io.Writer
	Color bool
}

func (r *Reporter) line(c color.Attribute, prefix, format string, args ...interface{}) {
	msg := prefix + fmt.Sprintf(format, args...)
	if r.Color {
		cc := color.New(c)
		cc.EnableColor()
		msg = cc.Sprint(msg)
	}
	fmt.Fprintln(r.W, msg)
}

// Errorf reports an error line.
func (r *Reporter) Errorf(format string, args ...interface{}) {
	r.line(color.FgRed, "ERROR: ", format, args...)
}

// Warnf reports a warning line.
func (r *Reporter) Warnf(format string, args ...interface{}) {
	r.line(color.FgYellow, "WARNING: ", format, args...)
}
