package powerbar

// PowerHeadroomWatts extends the power range past the start of the top zone so
// the bar is not full the moment the rider enters it.
const PowerHeadroomWatts = 50

// Remap maps value linearly from [fromMin, fromMax] onto [toMin, toMax]. Values
// outside the source range extrapolate. A zero-width source range yields NaN or
// ±Inf; callers guard against that.
func Remap(value, fromMin, fromMax, toMin, toMax float64) float64 {
	return (value-fromMin)*(toMax-toMin)/(fromMax-fromMin) + toMin
}
