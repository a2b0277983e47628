package chronikcache

import (
	"os"

	"github.com/erigontech/erigon-lib/log/v3"
)

// newLogger returns the structured logger every component is handed.
// enableLogging=false installs a handler that discards everything so the
// cache never writes to stderr by default.
func newLogger(enableLogging bool) log.Logger {
	l := log.New()
	if enableLogging {
		l.SetHandler(log.LvlFilterHandler(log.LvlInfo, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))
	} else {
		l.SetHandler(log.DiscardHandler())
	}
	return l
}
