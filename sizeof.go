package fibermill

// These constants describe the target platform's memory geometry and are
// used to pad hot atomics onto their own cache line, avoiding false sharing
// between workers polling the scheduler's shared state.
const (
	// cacheLineSize is the size of a CPU cache line. 64 bytes is standard
	// for x86-64; 128 bytes is standard for Apple Silicon and other modern
	// ARM64 parts. 128 satisfies the largest common alignment requirement.
	cacheLineSize = 128

	// wordSize is the size of a machine word / pointer / atomic.Uint64.
	wordSize = 8
)
