package internal

// Prand32 generates a pseudo random number from a seed using the xorshift
// algorithm ("xor" from p. 4 of Marsaglia, "Xorshift RNGs"). Used to derive
// successive initial sequence numbers (ISNs) from a single seed drawn once
// from a real entropy source at process start: reseeding per-call produces
// poor randomness, so callers must keep the seed alive across calls instead
// of reseeding every time an ISN is needed.
func Prand32[T ~uint32](seed T) T {
	seed ^= seed << 13
	seed ^= seed >> 17
	seed ^= seed << 5
	return seed
}
