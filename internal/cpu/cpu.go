package cpu

import "runtime"

// coreFor maps an arbitrary slot number onto a valid CPU index.
func coreFor(slot int) int {
	n := runtime.NumCPU()
	slot %= n
	if slot < 0 {
		slot += n
	}
	return slot
}
