package analytics

import (
	"fmt"
	"time"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

const isoDay = "2006-01-02"

// monthAbbr holds the pt-BR month abbreviations used on chart labels.
var monthAbbr = [12]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// DaysBetween returns the whole days from one ISO date to a later ISO
// date. Unparseable input degrades to zero.
func DaysBetween(from, to string) int {
	a, err1 := time.Parse(isoDay, from)
	b, err2 := time.Parse(isoDay, to)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

// ReferenceDate anchors "today" to the most recent shipment ever seen
// across all aggregates, making every downstream computation
// deterministic and independent of wall-clock time. Returns "" for an
// empty dataset.
func ReferenceDate(clients []domain.Client) string {
	var max string
	for i := range clients {
		if clients[i].LastShipmentDate > max {
			max = clients[i].LastShipmentDate
		}
	}
	return max
}

// monthLabel renders a YYYY-MM key as the pt-BR chart label, e.g. "nov/24".
func monthLabel(year, month int) string {
	return fmt.Sprintf("%s/%02d", monthAbbr[month-1], year%100)
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
