// Package fare estimates trip fares from a static per-class rate table.
package fare

import "github.com/example/ride-hailing/internal/models"

// DefaultNominalKm stands in for the trip distance when the caller does not
// know it. It is a placeholder until a real distance computation exists.
const DefaultNominalKm = 5.0

type Rate struct {
	BaseFare float64
	PerKm    float64
}

// Rates holds the tier for each class. Unknown classes use lowestTier.
var Rates = map[models.CarClass]Rate{
	models.CarMini:  {BaseFare: 50, PerKm: 12},
	models.CarSedan: {BaseFare: 60, PerKm: 15},
	models.CarSUV:   {BaseFare: 80, PerKm: 20},
}

const lowestTier = models.CarMini

type Estimator struct {
	NominalKm float64
}

func NewEstimator(nominalKm float64) *Estimator {
	if nominalKm <= 0 {
		nominalKm = DefaultNominalKm
	}
	return &Estimator{NominalKm: nominalKm}
}

// Distance resolves the distance the fare is computed on.
func (e *Estimator) Distance(distanceKm float64) float64 {
	if distanceKm > 0 {
		return distanceKm
	}
	return e.NominalKm
}

func (e *Estimator) Estimate(class models.CarClass, distanceKm float64) float64 {
	r, ok := Rates[class]
	if !ok {
		r = Rates[lowestTier]
	}
	return r.BaseFare + r.PerKm*e.Distance(distanceKm)
}
