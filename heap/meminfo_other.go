//go:build !linux

package heap

// MemInfo reports system memory figures on Linux only.
func MemInfo() (MemStats, bool) { return MemStats{}, false }
