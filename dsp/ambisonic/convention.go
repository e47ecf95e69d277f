package ambisonic

import "math"

// ChannelOrder identifies the ordering of the four input channels.
type ChannelOrder int

const (
	// OrderACN is W, Y, Z, X.
	OrderACN ChannelOrder = iota
	// OrderFuMa is W, X, Y, Z.
	OrderFuMa
)

func (o ChannelOrder) String() string {
	switch o {
	case OrderACN:
		return "acn"
	case OrderFuMa:
		return "fuma"
	default:
		return "unknown"
	}
}

// Normalization identifies the SH normalisation of the input channels.
type Normalization int

const (
	NormN3D Normalization = iota
	NormSN3D
	// NormFuMa is SN3D with W attenuated by 3 dB.
	NormFuMa
)

func (n Normalization) String() string {
	switch n {
	case NormN3D:
		return "n3d"
	case NormSN3D:
		return "sn3d"
	case NormFuMa:
		return "fuma"
	default:
		return "unknown"
	}
}

// ParseChannelOrder parses "acn" or "fuma".
func ParseChannelOrder(s string) (ChannelOrder, bool) {
	for _, o := range []ChannelOrder{OrderACN, OrderFuMa} {
		if o.String() == s {
			return o, true
		}
	}
	return OrderACN, false
}

// ParseNormalization parses "n3d", "sn3d" or "fuma".
func ParseNormalization(s string) (Normalization, bool) {
	for _, n := range []Normalization{NormN3D, NormSN3D, NormFuMa} {
		if n.String() == s {
			return n, true
		}
	}
	return NormN3D, false
}

// ToInternal converts the first NumSH channels in place from the given
// order and normalisation to ACN/N3D. Channels must have equal length.
func ToInternal(ch [][]float64, order ChannelOrder, norm Normalization) {
	if len(ch) < NumSH {
		return
	}
	n := len(ch[0])

	if order == OrderFuMa {
		for i := 0; i < n; i++ {
			x, y, z := ch[1][i], ch[2][i], ch[3][i]
			ch[1][i], ch[2][i], ch[3][i] = y, z, x
		}
	}

	var wGain, dipoleGain float64
	switch norm {
	case NormSN3D:
		wGain, dipoleGain = 1, sqrt3
	case NormFuMa:
		wGain, dipoleGain = math.Sqrt2, sqrt3
	default:
		return
	}

	if wGain != 1 {
		for i := range ch[0] {
			ch[0][i] *= wGain
		}
	}
	for c := 1; c < NumSH; c++ {
		for i := range ch[c] {
			ch[c][i] *= dipoleGain
		}
	}
}
