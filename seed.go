package horunner

import (
	"encoding/binary"
	"hash/fnv"
)

// deriveSeed mixes the master seed with the scheduling position of a launch.
//
// The seed depends only on (master, history length at launch, slot, attempt),
// never on wall-clock or on how many launches happened before, so a run
// resumed from a checkpoint draws the same seeds as an uninterrupted run at
// the same history length. attempt counts crashes of the slot since its last
// accepted result, which gives a crashed slot a fresh candidate.
func deriveSeed(master int64, historyLen, slot, attempt int) int64 {
	h := fnv.New64a()

	var buf [8]byte
	for _, v := range []int64{master, int64(historyLen), int64(slot), int64(attempt)} {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}

	return int64(h.Sum64() &^ (1 << 63))
}

// pointSeed derives the seed of the k-th point produced inside a unit.
func pointSeed(unitSeed int64, k int) int64 {
	if k == 0 {
		return unitSeed
	}

	return deriveSeed(unitSeed, k, -1, 0)
}
