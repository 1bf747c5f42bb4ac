//go:build linux || darwin

package sidecar

import (
	"bytes"

	"golang.org/x/sys/unix"
)

// kernelVersion reports the running kernel release, empty when the
// syscall is unavailable.
func kernelVersion() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return string(bytes.TrimRight(u.Release[:], "\x00"))
}
