package config

import "hash/fnv"

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0
// so callers can use 0 as "no content seen yet".
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
