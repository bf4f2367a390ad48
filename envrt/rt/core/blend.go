package core

import "math"

// Blend merges one observation into a texel.
//
// conf is the texel's accumulated confidence (0 for a texel never observed).
// The new confidence is min(conf+weight, maxObservations) and the sample is
// mixed in with factor weight/newConf: the first observation overwrites, later
// ones form a running mean, and once the cap is reached the texel follows an
// exponential moving average. FlagOverwrite forces a factor of 1.
//
// ok is false when the weight leaves the confidence non-positive; the texel
// must then be left untouched.
func Blend(prev, sample [4]float32, conf float32, info FrameInfo) (out [4]float32, newConf float32, ok bool) {
	newConf = conf + info.BlendWeight
	if newConf > info.MaxObservations {
		newConf = info.MaxObservations
	}
	if newConf <= 0 {
		return prev, conf, false
	}
	alpha := info.BlendWeight / newConf
	if info.Flags&FlagOverwrite != 0 {
		alpha = 1
	}
	for i := range out {
		out[i] = prev[i]*(1-alpha) + sample[i]*alpha
	}
	return out, newConf, true
}

// UnormToFloat converts an 8-bit normalized channel to [0,1].
func UnormToFloat(c uint8) float32 {
	return float32(c) / 255
}

// FloatToUnorm converts a [0,1] channel to 8 bits with round-to-nearest, the
// conversion storage texture writes use.
func FloatToUnorm(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Floor(float64(v)*255 + 0.5))
}
