//go:build linux

package heap

import "golang.org/x/sys/unix"

// MemInfo returns system memory figures from sysinfo(2). ok is false when
// the kernel call fails.
func MemInfo() (MemStats, bool) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return MemStats{}, false
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	kib := func(v uint64) uint64 { return v * unit / 1024 }
	return MemStats{
		TotalRAM:  kib(uint64(si.Totalram)),
		FreeRAM:   kib(uint64(si.Freeram)),
		TotalSwap: kib(uint64(si.Totalswap)),
		FreeSwap:  kib(uint64(si.Freeswap)),
	}, true
}
