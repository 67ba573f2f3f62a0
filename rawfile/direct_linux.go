//go:build linux

package rawfile

import "golang.org/x/sys/unix"

// directFlag is the O_DIRECT bit to OR into open(2) flags on platforms
// that define it.
func directFlag() int {
	return unix.O_DIRECT
}
