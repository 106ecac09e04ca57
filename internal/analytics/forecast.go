package analytics

import (
	"math/rand"
	"time"
)

const (
	forecastWindow  = 7
	forecastHorizon = 30
	forecastJitter  = 0.05
)

// ForecastPoint is one projected day of revenue.
type ForecastPoint struct {
	Date      string  `json:"date"`
	Predicted float64 `json:"predicted_revenue"`
}

// Forecaster projects near-future revenue by extrapolating the trailing
// seven-day average with bounded uniform noise. It is a trend
// indicator, not a statistical model; confidence intervals and
// seasonality are out of scope.
type Forecaster struct {
	rng *rand.Rand
	now func() time.Time
}

// NewForecaster creates a forecaster drawing its noise from rng. The
// caller owns the source; the forecaster never reseeds it.
func NewForecaster(rng *rand.Rand) *Forecaster {
	return &Forecaster{
		rng: rng,
		now: time.Now,
	}
}

// Forecast projects the next 30 days from a daily revenue series. The
// series must be in ascending date order. Fewer than seven days of
// history is too little signal, so the result is empty rather than a
// projection from a padded window.
func (f *Forecaster) Forecast(history []DailyPoint) []ForecastPoint {
	if len(history) < forecastWindow {
		return []ForecastPoint{}
	}

	var sum float64
	for _, p := range history[len(history)-forecastWindow:] {
		sum += p.Revenue
	}
	avg := sum / forecastWindow

	today := f.now().UTC()
	points := make([]ForecastPoint, 0, forecastHorizon)
	for i := 1; i <= forecastHorizon; i++ {
		// Uniform factor in [1-jitter, 1+jitter].
		factor := 1 + (f.rng.Float64()*2-1)*forecastJitter
		predicted := avg * factor
		if predicted < 0 {
			predicted = 0
		}
		points = append(points, ForecastPoint{
			Date:      today.AddDate(0, 0, i).Format("2006-01-02"),
			Predicted: predicted,
		})
	}
	return points
}
