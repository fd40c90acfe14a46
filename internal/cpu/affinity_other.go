//go:build !linux

package cpu

import "runtime"

// Pin locks the calling goroutine to its OS thread. CPU placement is left to
// the operating system on this platform.
func Pin(slot int) (release func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}

// Supported reports whether Pin restricts CPU placement on this platform.
func Supported() bool { return false }
