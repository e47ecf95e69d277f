package binaural

import (
	"github.com/cwbudde/algo-binaural/dsp/ambisonic"
	"github.com/cwbudde/algo-binaural/dsp/hrtf"
)

// Settings is a snapshot of every user parameter, suitable for JSON
// persistence by a host.
type Settings struct {
	EnableCroPaC        bool      `json:"enableCroPaC"`
	Balance             []float64 `json:"balance"`
	CovarianceAveraging float64   `json:"covarianceAveraging"`
	AnalysisLimit       float64   `json:"analysisLimit"`

	UseDefaultHRIRs   bool   `json:"useDefaultHRIRs"`
	HRIRPath          string `json:"hrirPath,omitempty"`
	DiffuseCorrection bool   `json:"diffuseCorrection"`
	Preprocessing     string `json:"preprocessing"`

	ChannelOrder  string `json:"channelOrder"`
	Normalization string `json:"normalization"`

	EnableRotation bool    `json:"enableRotation"`
	Yaw            float64 `json:"yaw"`
	Pitch          float64 `json:"pitch"`
	Roll           float64 `json:"roll"`
	FlipYaw        bool    `json:"flipYaw"`
	FlipPitch      bool    `json:"flipPitch"`
	FlipRoll       bool    `json:"flipRoll"`
	RollPitchYaw   bool    `json:"rollPitchYaw"`
}

// Settings returns the current parameters.
func (d *Decoder) Settings() Settings {
	_, balance := d.BalanceCurve()
	return Settings{
		EnableCroPaC:        d.EnableCroPaC(),
		Balance:             balance,
		CovarianceAveraging: d.CovarianceAveraging(),
		AnalysisLimit:       d.AnalysisLimit(),
		UseDefaultHRIRs:     d.UseDefaultHRIRs(),
		HRIRPath:            d.HRIRPath(),
		DiffuseCorrection:   d.DiffuseCorrection(),
		Preprocessing:       d.HRIRPreprocessing().String(),
		ChannelOrder:        d.ChannelOrder().String(),
		Normalization:       d.Normalization().String(),
		EnableRotation:      d.EnableRotation(),
		Yaw:                 d.Yaw(),
		Pitch:               d.Pitch(),
		Roll:                d.Roll(),
		FlipYaw:             d.FlipYaw(),
		FlipPitch:           d.FlipPitch(),
		FlipRoll:            d.FlipRoll(),
		RollPitchYaw:        d.RollPitchYawOrder(),
	}
}

// ApplySettings restores parameters through the regular setters, so values
// are clamped and a rebuild is scheduled when table inputs change. Unknown
// enum names and missing balance values leave the current values in place.
func (d *Decoder) ApplySettings(s Settings) {
	d.SetEnableCroPaC(s.EnableCroPaC)
	for band, v := range s.Balance {
		d.SetBalance(band, v)
	}
	d.SetCovarianceAveraging(s.CovarianceAveraging)
	d.SetAnalysisLimit(s.AnalysisLimit)

	if s.HRIRPath != "" && s.HRIRPath != d.HRIRPath() {
		d.SetHRIRPath(s.HRIRPath)
	}
	d.SetUseDefaultHRIRs(s.UseDefaultHRIRs)
	d.SetDiffuseCorrection(s.DiffuseCorrection)
	if mode, ok := hrtf.ParsePreprocessing(s.Preprocessing); ok {
		d.SetHRIRPreprocessing(mode)
	}

	if order, ok := ambisonic.ParseChannelOrder(s.ChannelOrder); ok {
		d.SetChannelOrder(order)
	}
	if norm, ok := ambisonic.ParseNormalization(s.Normalization); ok {
		d.SetNormalization(norm)
	}

	d.SetEnableRotation(s.EnableRotation)
	d.SetFlipYaw(s.FlipYaw)
	d.SetFlipPitch(s.FlipPitch)
	d.SetFlipRoll(s.FlipRoll)
	d.SetYaw(s.Yaw)
	d.SetPitch(s.Pitch)
	d.SetRoll(s.Roll)
	d.SetRollPitchYawOrder(s.RollPitchYaw)
}
