// Package platform detects host CPU properties used to size the tiled
// matrix multiply.
package platform

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"
)

// Tile widths the blocked matrix multiply is tuned for, largest first.
var tileWidths = []int{32, 16, 8}

// DefaultTileWidth is used when the L1 data cache size is unknown.
const DefaultTileWidth = 16

// Info describes the host CPU.
type Info struct {
	Brand         string
	Arch          string
	PhysicalCores int
	LogicalCores  int
	L1DataCache   int // Bytes, 0 if unknown

	AVX2  bool
	FMA   bool
	ASIMD bool
}

// Detect reads the host CPU properties. Cache topology and core counts come
// from cpuid, instruction set flags from x/sys/cpu.
func Detect() Info {
	info := Info{
		Brand:         cpuid.CPU.BrandName,
		Arch:          runtime.GOARCH,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		L1DataCache:   max(cpuid.CPU.Cache.L1D, 0),
		AVX2:          cpu.X86.HasAVX2,
		FMA:           cpu.X86.HasFMA,
		ASIMD:         cpu.ARM64.HasASIMD,
	}

	// cpuid reports zero cores on architectures it cannot probe.
	if info.LogicalCores <= 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	if info.PhysicalCores <= 0 {
		info.PhysicalCores = info.LogicalCores
	}
	if info.Brand == "" {
		info.Brand = "unknown"
	}
	return info
}

// TileWidth picks the largest supported tile width whose two T×T float32
// working sets fit in half of the L1 data cache.
func TileWidth(info Info) int {
	if info.L1DataCache <= 0 {
		return DefaultTileWidth
	}
	budget := info.L1DataCache / 2
	for _, t := range tileWidths {
		if 2*t*t*4 <= budget {
			return t
		}
	}
	return tileWidths[len(tileWidths)-1]
}

// GroupSize returns how many workers cooperate on one output tile.
func GroupSize(info Info, tileWidth int) int {
	return max(min(tileWidth, info.LogicalCores), 1)
}
