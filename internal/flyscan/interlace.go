package flyscan

import "math/bits"

// BitReverse reverses the order of the low nbits binary digits of x.
// Higher bits are discarded. BitReverse(1, 2) == 2, BitReverse(2, 2) == 1.
func BitReverse(x uint, nbits int) uint {
	if nbits <= 0 {
		return 0
	}
	return bits.Reverse(x) >> (bits.UintSize - nbits)
}

// ValidateInterlace reports whether spec can be permuted: both counts
// positive, NumLoops a power of two no larger than TotalProjections, and
// dividing it evenly.
func ValidateInterlace(spec InterlaceSpec) error {
	n, k := spec.TotalProjections, spec.NumLoops
	switch {
	case n <= 0:
		return degeneratef("total_projections must be positive, got %d", n)
	case k <= 0:
		return degeneratef("num_loops must be positive, got %d", k)
	case k&(k-1) != 0:
		return degeneratef("num_loops %d is not a power of two", k)
	case k > n:
		return degeneratef("num_loops %d exceeds total_projections %d", k, n)
	case n%k != 0:
		return degeneratef("num_loops %d does not divide total_projections %d", k, n)
	}
	return nil
}

// Interlace returns the time-ordered acquisition schedule for spec.
//
// Index n belongs to loop floor(n*K/N) mod K. Each loop samples the full
// revolution at stride K, offset by the bit-reversed loop index, so later
// loops fill in the gaps left by earlier ones.
func Interlace(spec InterlaceSpec) ([]AcquisitionEvent, error) {
	if err := ValidateInterlace(spec); err != nil {
		return nil, err
	}
	n, k := spec.TotalProjections, spec.NumLoops
	width := bits.TrailingZeros(uint(k))
	stride := 360 / float64(n)

	events := make([]AcquisitionEvent, n)
	for i := 0; i < n; i++ {
		loop := (i * k / n) % k
		val := i*k + int(BitReverse(uint(loop), width))
		events[i] = AcquisitionEvent{
			SequenceIndex: i,
			LoopID:        loop,
			AngleDeg:      float64(val%n) * stride,
		}
	}
	return events, nil
}

// LoopAngles groups a schedule by loop, preserving time order inside each loop.
func LoopAngles(events []AcquisitionEvent, numLoops int) [][]float64 {
	out := make([][]float64, numLoops)
	for _, ev := range events {
		if ev.LoopID < 0 || ev.LoopID >= numLoops {
			continue
		}
		out[ev.LoopID] = append(out[ev.LoopID], ev.AngleDeg)
	}
	return out
}
