//go:build !linux && !darwin

package sidecar

// kernelVersion is unavailable off unix; the sidecar omits the field.
func kernelVersion() string { return "" }
