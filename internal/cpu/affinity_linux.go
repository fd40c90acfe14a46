//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to one CPU, chosen as slot modulo the number of CPUs. The returned function
// undoes the thread lock; the affinity mask dies with the thread.
//
// A failing sched_setaffinity leaves the goroutine locked but unpinned.
func Pin(slot int) (release func(), err error) {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(coreFor(slot))

	// 0 = calling thread
	err = unix.SchedSetaffinity(0, &mask)
	return runtime.UnlockOSThread, err
}

// Supported reports whether Pin restricts CPU placement on this platform.
func Supported() bool { return true }
