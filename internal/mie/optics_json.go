package mie

import "encoding/json"

// opticsJSON is the persisted form of Optics. encoding/json has no complex
// number support, so the particle index is split into its parts.
type opticsJSON struct {
	WavelengthNM      float64   `json:"wavelength_nm"`
	ParticleIndexReal float64   `json:"particle_index_real"`
	ParticleIndexImag float64   `json:"particle_index_imag"`
	MediumIndex       float64   `json:"medium_index"`
	Geometry          *Geometry `json:"geometry,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (o Optics) MarshalJSON() ([]byte, error) {
	rec := opticsJSON{
		WavelengthNM:      o.WavelengthNM,
		ParticleIndexReal: real(o.ParticleIndex),
		ParticleIndexImag: imag(o.ParticleIndex),
		MediumIndex:       o.MediumIndex,
	}
	if o.Geometry != (Geometry{}) {
		g := o.Geometry
		rec.Geometry = &g
	}
	return json.Marshal(rec)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optics) UnmarshalJSON(data []byte) error {
	var rec opticsJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*o = Optics{
		WavelengthNM:  rec.WavelengthNM,
		ParticleIndex: complex(rec.ParticleIndexReal, rec.ParticleIndexImag),
		MediumIndex:   rec.MediumIndex,
	}
	if rec.Geometry != nil {
		o.Geometry = *rec.Geometry
	}
	return nil
}
