package ui

import (
	"io"

	"github.com/charmbracelet/log"
)

// testLogger discards output so tests stay quiet.
func testLogger() *log.Logger {
	return log.New(io.Discard)
}
