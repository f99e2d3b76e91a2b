package analytics

import (
	"sort"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// historicalMonths is the fixed width of the historical window: the
// trailing 12 calendar months ending at the reference month.
const historicalMonths = 12

// projectedMonths is how far ahead the forecast extends.
const projectedMonths = 12

// projectionWindow caps how many trailing monthly buckets feed the
// weighted base value.
const projectionWindow = 6

// safetyMargin deliberately understates the forecast base.
const safetyMargin = 0.85

// seasonality is the fixed monthly multiplier table (index 0 = January):
// trough in Jan/Feb, a gentle climb through the year, peak in November
// for the Black Friday / Christmas-stock season, tapering in December.
// Tunable constants, not derived from the data.
var seasonality = [12]float64{
	0.80, // jan
	0.85, // fev
	0.95, // mar
	1.00, // abr
	1.00, // mai
	1.02, // jun
	1.05, // jul
	1.05, // ago
	1.08, // set
	1.10, // out
	1.18, // nov
	1.05, // dez
}

// BuildChartSeries buckets the filtered transaction set by calendar
// month and emits the trailing 12 historical months (gaps filled with
// zero revenue) followed by 12 projected months. The boundary month
// carries both values so a line chart joins without a visual gap.
// Zero transactions yield an empty series.
func BuildChartSeries(history []domain.Transaction, referenceDate string) []domain.ChartDataPoint {
	if len(history) == 0 || len(referenceDate) < 7 {
		return []domain.ChartDataPoint{}
	}

	buckets := make(map[string]float64)
	for _, t := range history {
		buckets[t.Date[:7]] += t.Value
	}

	refYear, refMonth := yearMonth(referenceDate)

	points := make([]domain.ChartDataPoint, 0, historicalMonths+projectedMonths)

	year, month := shiftMonth(refYear, refMonth, -(historicalMonths - 1))
	for i := 0; i < historicalMonths; i++ {
		key := monthKey(year, month)
		revenue := buckets[key]
		points = append(points, domain.ChartDataPoint{
			Name:    monthLabel(year, month),
			Date:    key,
			Revenue: ptr(revenue),
		})
		year, month = shiftMonth(year, month, 1)
	}

	base := projectionBase(buckets) * safetyMargin

	// Link the last historical point so the chart line is continuous.
	boundary := &points[len(points)-1]
	boundary.ProjectedRevenue = ptr(*boundary.Revenue)

	year, month = shiftMonth(refYear, refMonth, 1)
	for i := 0; i < projectedMonths; i++ {
		value := base * seasonality[month-1]
		points = append(points, domain.ChartDataPoint{
			Name:             monthLabel(year, month),
			Date:             monthKey(year, month),
			ProjectedRevenue: ptr(value),
			IsProjection:     true,
		})
		year, month = shiftMonth(year, month, 1)
	}

	return points
}

// projectionBase computes a linearly weighted average of the most recent
// monthly buckets (up to projectionWindow, fewer when less history
// exists), the most recent month weighing heaviest.
func projectionBase(buckets map[string]float64) float64 {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	window := len(keys)
	if window > projectionWindow {
		window = projectionWindow
	}
	if window == 0 {
		return 0
	}

	var weighted, weights float64
	recent := keys[len(keys)-window:]
	for i, key := range recent {
		w := float64(i + 1)
		weighted += buckets[key] * w
		weights += w
	}
	return weighted / weights
}

func yearMonth(isoDate string) (int, int) {
	var year, month int
	for _, c := range isoDate[:4] {
		year = year*10 + int(c-'0')
	}
	for _, c := range isoDate[5:7] {
		month = month*10 + int(c-'0')
	}
	return year, month
}

func shiftMonth(year, month, delta int) (int, int) {
	idx := year*12 + (month - 1) + delta
	return idx / 12, idx%12 + 1
}

func ptr(v float64) *float64 {
	return &v
}
