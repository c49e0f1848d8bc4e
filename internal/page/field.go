package page

import "math/rand/v2"

const DefaultFieldSize = 50

const (
	minTokenSize     = 5.0
	maxTokenSize     = 15.0
	maxPercent       = 100.0
	minPulseDuration = 5.0
	maxPulseDuration = 10.0
	maxPulseDelay    = 5.0

	parallaxLayers = 5
	parallaxFactor = 0.1
)

// DecorativeToken describes one background particle. Durations are in seconds.
type DecorativeToken struct {
	Size              float64 `json:"size"`
	TopPercent        float64 `json:"top_percent"`
	LeftPercent       float64 `json:"left_percent"`
	AnimationDuration float64 `json:"animation_duration"`
	AnimationDelay    float64 `json:"animation_delay"`
}

// GenerateField draws count tokens uniformly from their fixed ranges.
// A nil rng uses the process-wide random source.
func GenerateField(rng *rand.Rand, count int) []DecorativeToken {
	if count < 0 {
		count = 0
	}
	draw := rand.Float64
	if rng != nil {
		draw = rng.Float64
	}
	between := func(lo, hi float64) float64 {
		return lo + draw()*(hi-lo)
	}

	field := make([]DecorativeToken, count)
	for i := range field {
		field[i] = DecorativeToken{
			Size:              between(minTokenSize, maxTokenSize),
			TopPercent:        between(0, maxPercent),
			LeftPercent:       between(0, maxPercent),
			AnimationDuration: between(minPulseDuration, maxPulseDuration),
			AnimationDelay:    between(0, maxPulseDelay),
		}
	}
	return field
}

// ParallaxOffset is the vertical translation in pixels applied to the token at
// index for the given scroll offset. Tokens are spread over five depth layers.
func ParallaxOffset(scroll float64, index int) float64 {
	return scroll * float64(index%parallaxLayers) * parallaxFactor
}
