package heap

// MemStats reports system memory figures in KiB. Embedders surface them
// to runtime code that wants to warn before the machine starts swapping.
type MemStats struct {
	TotalRAM  uint64
	FreeRAM   uint64
	TotalSwap uint64
	FreeSwap  uint64
}
