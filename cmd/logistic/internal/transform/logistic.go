package transform

// R is the logistic map parameter. 4.0 puts the map in its chaotic regime.
const R = 4.0

// Logistic returns the next value of the logistic map for x.
// Inputs outside [0,1] are not rejected.
func Logistic(x float64) float64 {
	return R * x * (1 - x)
}
