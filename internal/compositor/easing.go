package compositor

// easeInOutCubic applies smooth easing function
func easeInOutCubic(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// clamp01 clamps a progress value into [0, 1]. Negative deltas from clock
// jitter clamp to zero instead of propagating.
func clamp01(t float64) float64 {
	if t < 0 || t != t {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// pow calculates x^n
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}

// CrossfadeAlpha returns the opacity of the incoming scene at time t for a
// dissolve ending at nextStart. It is exactly 0 at the window start, exactly
// 1 at nextStart and monotonically non-decreasing in between.
func CrossfadeAlpha(t, nextStart, fadeMs int64) float64 {
	if fadeMs <= 0 {
		if t >= nextStart {
			return 1
		}
		return 0
	}
	windowStart := nextStart - fadeMs
	if t <= windowStart {
		return 0
	}
	if t >= nextStart {
		return 1
	}
	return easeInOutCubic(float64(t-windowStart) / float64(fadeMs))
}
