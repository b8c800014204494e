package sffs

import (
	"io"

	"github.com/sirupsen/logrus"
)

// newLogSink returns the default per-context log sink: a logrus.Logger
// writing to io.Discard at Warn level, so a Context never produces output
// unless the caller opts in with Context.SetLogger.
func newLogSink() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetLogger installs lg as the context's log sink. Passing nil restores the
// silent default.
func (c *Context) SetLogger(lg *logrus.Logger) {
	if lg == nil {
		lg = newLogSink()
	}
	c.log = lg
}
