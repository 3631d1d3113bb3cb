package trace

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Model samples one frame of traffic per call: the gap to wait after the
// previous burst and the burst's payload size. Implementations draw from a
// seeded generator, so a fixed seed reproduces the sequence bit for bit.
type Model interface {
	NextBurst() (interval time.Duration, size uint32)
}

// minInterval keeps sampled gaps strictly positive so accumulated schedule
// times stay strictly increasing.
const minInterval = time.Microsecond

// NormalConfig parameterizes NormalModel. FrameRate sets the nominal
// inter-burst interval to 1/FrameRate. IntervalJitter is the bound of a
// symmetric uniform perturbation, as a fraction of the nominal interval.
type NormalConfig struct {
	FrameRate      float64
	SizeMean       float64
	SizeStddev     float64
	SizeMin        uint32
	IntervalJitter float64
	Seed           int64
}

// NormalModel draws burst sizes from a truncated normal distribution and
// inter-burst intervals from a bounded uniform perturbation around the
// nominal frame interval.
type NormalModel struct {
	cfg     NormalConfig
	nominal time.Duration
	rng     *rand.Rand
}

func NewNormalModel(cfg NormalConfig) (*NormalModel, error) {
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %v", cfg.FrameRate)
	}
	if cfg.SizeMean <= 0 {
		return nil, fmt.Errorf("size mean must be positive, got %v", cfg.SizeMean)
	}
	if cfg.SizeStddev < 0 {
		return nil, fmt.Errorf("size stddev must be non-negative, got %v", cfg.SizeStddev)
	}
	if cfg.IntervalJitter < 0 || cfg.IntervalJitter > 1 {
		return nil, fmt.Errorf("interval jitter must be in [0,1], got %v", cfg.IntervalJitter)
	}
	if cfg.SizeMin == 0 {
		cfg.SizeMin = 1
	}
	return &NormalModel{
		cfg:     cfg,
		nominal: time.Duration(float64(time.Second) / cfg.FrameRate),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (m *NormalModel) NextBurst() (time.Duration, uint32) {
	size := m.cfg.SizeMean + m.rng.NormFloat64()*m.cfg.SizeStddev
	if size < float64(m.cfg.SizeMin) {
		size = float64(m.cfg.SizeMin)
	}
	if size > float64(^uint32(0)) {
		size = float64(^uint32(0))
	}

	// u in [-1,1), scaled by the jitter bound
	u := 2*m.rng.Float64() - 1
	interval := time.Duration(float64(m.nominal) * (1 + m.cfg.IntervalJitter*u))
	if interval < minInterval {
		interval = minInterval
	}
	return interval, uint32(size)
}

// Nominal reports the unperturbed inter-burst interval.
func (m *NormalModel) Nominal() time.Duration {
	return m.nominal
}

// logisticVariable samples a logistic distribution by inverse transform,
// rejecting draws farther than Bound from Location.
type logisticVariable struct {
	Location float64
	Scale    float64
	Bound    float64
	rng      *rand.Rand
}

func (lv *logisticVariable) Sample() float64 {
	for {
		u := lv.rng.Float64()
		if u == 0 || u == 1 {
			continue
		}
		candidate := lv.Location + lv.Scale*math.Log(u/(1-u))
		if math.Abs(candidate-lv.Location) <= lv.Bound {
			return candidate
		}
	}
}

// vrCoefficients are the measured dispersion parameters of one VR
// application, fitted against frame-size and inter-frame-interval captures.
type vrCoefficients struct {
	alpha   float64
	beta    float64
	gamma   float64
	delta   float64
	epsilon float64
}

var vrApps = map[string]vrCoefficients{
	"VirusPopper": {
		alpha:   0.17843005544386825,
		beta:    -0.24033549,
		gamma:   0.03720502322046791,
		delta:   0.014333111298430356,
		epsilon: 0.17636808,
	},
	"Minecraft": {
		alpha:   0.18570635904452573,
		beta:    -0.18721216,
		gamma:   0.07132669841811076,
		delta:   0.024192743507827373,
		epsilon: 0.22666163,
	},
	"GoogleEarthVrCities": {
		alpha:   0.259684566301378,
		beta:    -0.25390119,
		gamma:   0.034571656202610615,
		delta:   0.008953037116942649,
		epsilon: 0.3119082,
	},
	"GoogleEarthVrTour": {
		alpha:   0.25541435742159037,
		beta:    -0.20308171,
		gamma:   0.03468230656563422,
		delta:   0.010559650431826953,
		epsilon: 0.27560183,
	},
}

// VrApps lists the supported VR application profiles.
func VrApps() []string {
	names := make([]string, 0, len(vrApps))
	for name := range vrApps {
		names = append(names, name)
	}
	return names
}

// minVrBurst is the smallest frame the VR model will emit.
const minVrBurst = 24

// VrConfig parameterizes VrModel. FrameRate must be 30 or 60; the fitted
// dispersion coefficients only exist for those two rates.
type VrConfig struct {
	App            string
	FrameRate      float64
	TargetRateMbps float64
	Seed           int64
}

// VrModel reproduces the frame-level traffic of a measured VR application:
// logistic frame sizes centered on target_rate/frame_rate and logistic
// inter-frame intervals centered on 1/frame_rate, with app-specific
// dispersion.
type VrModel struct {
	cfg     VrConfig
	nominal time.Duration
	frameRv logisticVariable
	ifiRv   logisticVariable
}

func NewVrModel(cfg VrConfig) (*VrModel, error) {
	coeffs, ok := vrApps[cfg.App]
	if !ok {
		return nil, fmt.Errorf("unknown VR app %q", cfg.App)
	}
	if cfg.FrameRate != 30 && cfg.FrameRate != 60 {
		return nil, fmt.Errorf("frame rate must be 30 or 60, got %v", cfg.FrameRate)
	}
	if cfg.TargetRateMbps <= 0 {
		return nil, fmt.Errorf("target rate must be positive, got %v", cfg.TargetRateMbps)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	frameSizeAvg := cfg.TargetRateMbps * 1e6 / 8 / cfg.FrameRate
	ifiAvg := 1 / cfg.FrameRate

	frameDispersion := coeffs.alpha * math.Pow(cfg.TargetRateMbps, coeffs.beta)
	var ifiDispersion float64
	if cfg.FrameRate == 60 {
		ifiDispersion = coeffs.gamma
	} else {
		ifiDispersion = coeffs.delta * math.Pow(cfg.TargetRateMbps, coeffs.epsilon)
	}

	return &VrModel{
		cfg:     cfg,
		nominal: time.Duration(ifiAvg * float64(time.Second)),
		frameRv: logisticVariable{
			Location: frameSizeAvg,
			Scale:    frameSizeAvg * frameDispersion,
			Bound:    frameSizeAvg,
			rng:      rng,
		},
		ifiRv: logisticVariable{
			Location: ifiAvg,
			Scale:    ifiAvg * ifiDispersion,
			Bound:    ifiAvg,
			rng:      rng,
		},
	}, nil
}

func (m *VrModel) NextBurst() (time.Duration, uint32) {
	size := math.Trunc(m.frameRv.Sample())
	if size < minVrBurst {
		size = minVrBurst
	}

	interval := time.Duration(m.ifiRv.Sample() * float64(time.Second))
	if interval < minInterval {
		interval = minInterval
	}
	return interval, uint32(size)
}

// Nominal reports the average inter-frame interval.
func (m *VrModel) Nominal() time.Duration {
	return m.nominal
}
