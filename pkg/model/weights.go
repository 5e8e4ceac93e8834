package model

import "fmt"

// weightTolerance bounds |sum(weights) - 1| for skinned vertices.
const weightTolerance = 1e-6

// QuantizeWeights converts float weights to bytes summing to exactly 255.
// The rounding residual goes to the largest weight.
func QuantizeWeights(w [MaxInfluences]float32) [MaxInfluences]uint8 {
	var out [MaxInfluences]uint8
	sum := 0
	largest := 0
	for i, f := range w {
		v := int(f*255 + 0.5)
		v = max(0, min(255, v))
		out[i] = uint8(v)
		sum += v
		if f > w[largest] {
			largest = i
		}
	}
	out[largest] = uint8(int(out[largest]) + 255 - sum)
	return out
}

func weightSum(w [MaxInfluences]float32) float32 {
	var s float32
	for _, f := range w {
		s += f
	}
	return s
}

// normalizeWeights rescales weights whose sum is off by more than the decode
// tolerance; zero-weight slots get bone 0.
func normalizeWeights(v *Vertex) error {
	for i, f := range v.Weights {
		if f < 0 {
			return fmt.Errorf("%w: negative weight %v", ErrBadWeights, f)
		}
		if f == 0 {
			v.Bones[i] = 0
		}
	}
	sum := weightSum(v.Weights)
	if sum == 0 {
		return fmt.Errorf("%w: vertex has no bone influence", ErrBadWeights)
	}
	if d := sum - 1; d > weightTolerance || d < -weightTolerance {
		for i := range v.Weights {
			v.Weights[i] /= sum
		}
	}
	return nil
}
