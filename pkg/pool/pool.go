// Package pool provides float64 scratch-slice pooling for cldot.
//
// Both the host-emulated device and the dot-product pipeline allocate
// short-lived []float64 storage on every invocation: device buffers on the
// host backend, zero-padded copies of input vectors, and partial-sum
// readback slices. Pooling those slices keeps repeated invocations from
// churning the garbage collector.
//
// Slices are bucketed by power-of-two capacity so a returned slice can serve
// any later request up to its capacity.
//
// Usage:
//
//	buf := pool.GetFloat64s(n)
//	defer pool.PutFloat64s(buf)
//
//	copy(buf, x) // len(buf) == n, contents zeroed
package pool

import (
	"math/bits"
	"sync"
)

// PoolConfig configures pooling behavior.
//
// Fields:
//   - Enabled: Controls whether pooling is active (disable for debugging)
//   - MaxSize: Largest slice capacity, in elements, that is returned to a pool
//
// Example:
//
//	pool.Configure(pool.PoolConfig{
//		Enabled: true,
//		MaxSize: 1 << 20, // pool slices up to 1M elements (8 MiB)
//	})
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits the capacity of slices kept in the pools
	MaxSize int
}

const (
	minClassBits = 6  // 64 elements
	maxClassBits = 26 // 64M elements
	numClasses   = maxClassBits - minClassBits + 1
)

var (
	configMu     sync.RWMutex
	globalConfig = PoolConfig{
		Enabled: true,
		MaxSize: 1 << 22,
	}

	float64Pools [numClasses]sync.Pool
)

// Configure sets global pool configuration.
//
// Call it during initialization, before slices are handed out. Pools are
// reinitialized, so previously pooled slices are dropped.
func Configure(config PoolConfig) {
	configMu.Lock()
	defer configMu.Unlock()

	globalConfig = config
	for i := range float64Pools {
		float64Pools[i] = sync.Pool{}
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig.Enabled
}

func currentConfig() PoolConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// classFor returns the size class able to hold n elements, or -1 when n is
// beyond the largest class.
func classFor(n int) int {
	if n <= 1<<minClassBits {
		return 0
	}
	b := bits.Len(uint(n - 1))
	if b > maxClassBits {
		return -1
	}
	return b - minClassBits
}

// GetFloat64s returns a zeroed slice of length n.
//
// The slice may come from a pool, in which case its capacity is the size
// class of n. Always hand it back with PutFloat64s once it is no longer
// referenced.
func GetFloat64s(n int) []float64 {
	if n <= 0 {
		return nil
	}

	cfg := currentConfig()
	class := classFor(n)
	if !cfg.Enabled || class < 0 || n > cfg.MaxSize {
		return make([]float64, n)
	}

	if v := float64Pools[class].Get(); v != nil {
		buf := (*v.(*[]float64))[:n]
		clear(buf)
		return buf
	}
	return make([]float64, n, 1<<(class+minClassBits))
}

// PutFloat64s returns a slice obtained from GetFloat64s to its pool.
//
// Slices whose capacity is not an exact size class, or that exceed MaxSize,
// are dropped for the garbage collector.
func PutFloat64s(buf []float64) {
	c := cap(buf)
	if c == 0 {
		return
	}

	cfg := currentConfig()
	if !cfg.Enabled || c > cfg.MaxSize {
		return
	}

	class := classFor(c)
	if class < 0 || 1<<(class+minClassBits) != c {
		return
	}

	buf = buf[:0]
	float64Pools[class].Put(&buf)
}
