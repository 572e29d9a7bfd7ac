package model

import "fmt"

// AssetSpec is the wire/storage form of an Asset. The capability profile is
// flattened here and rebuilt into the Profile sum type on decode.
type AssetSpec struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	HomeID      string    `json:"homeId,omitempty"`
	Kind        AssetKind `json:"kind"`
	Capacity    Capacity  `json:"capacity"`
	SpeedKph    float64   `json:"speedKph,omitempty"`
	CostPerKm   float64   `json:"costPerKm,omitempty"`
	FuelPerKm   float64   `json:"fuelPerKm,omitempty"`
	HoldingCost float64   `json:"holdingCost,omitempty"`
	Reliability float64   `json:"reliability,omitempty"`
}

// Asset builds the domain asset from the spec. Unknown kinds are rejected up
// front so the optimizers never see a nil profile.
func (s AssetSpec) Asset() (Asset, error) {
	rel := s.Reliability
	if rel <= 0 {
		rel = 1
	}
	a := Asset{ID: s.ID, Name: s.Name, HomeID: s.HomeID}
	switch s.Kind {
	case KindShip:
		a.Profile = ShipProfile{Cap: s.Capacity, KnotsKph: s.SpeedKph, OpCostPerKm: s.CostPerKm, FuelLPerKm: s.FuelPerKm, ConditionPct: rel}
	case KindAircraft:
		a.Profile = AircraftProfile{Cap: s.Capacity, CruiseKph: s.SpeedKph, OpCostPerKm: s.CostPerKm, FuelLPerKm: s.FuelPerKm, ConditionPct: rel}
	case KindWarehouse:
		a.Profile = WarehouseProfile{Cap: s.Capacity, HoldingCost: s.HoldingCost, ConditionPct: rel}
	default:
		return Asset{}, fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, s.Kind)
	}
	return a, nil
}

// Spec flattens a domain asset back to its wire form.
func (a Asset) Spec() AssetSpec {
	s := AssetSpec{ID: a.ID, Name: a.Name, HomeID: a.HomeID}
	if a.Profile == nil {
		return s
	}
	s.Kind = a.Profile.Kind()
	s.Capacity = a.Profile.Capacity()
	s.SpeedKph = a.Profile.SpeedKph()
	s.CostPerKm = a.Profile.CostPerKm()
	s.FuelPerKm = a.Profile.FuelPerKm()
	s.Reliability = a.Profile.Reliability()
	if w, ok := a.Profile.(WarehouseProfile); ok {
		s.HoldingCost = w.HoldingCost
		s.CostPerKm = 0
	}
	return s
}

// DecodeAssets converts a slice of wire specs, failing on the first bad one.
func DecodeAssets(specs []AssetSpec) ([]Asset, error) {
	out := make([]Asset, 0, len(specs))
	for i, sp := range specs {
		a, err := sp.Asset()
		if err != nil {
			return nil, fmt.Errorf("asset[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}
