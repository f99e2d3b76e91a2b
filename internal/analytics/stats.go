package analytics

import "github.com/slelog/crm-dashboard-go/internal/domain"

// activeWithinDays is the recency bound for counting a client as active
// on the KPI block.
const activeWithinDays = 90

// ComputeStats aggregates the KPI block over a filtered, scored view.
func ComputeStats(clients []domain.Client) domain.PortfolioStats {
	var stats domain.PortfolioStats
	stats.ClientsCount = len(clients)

	var active int
	for i := range clients {
		stats.Revenue += clients[i].TotalRevenue
		stats.Shipments += clients[i].TotalShipments
		if clients[i].Recency <= activeWithinDays {
			active++
		}
	}

	if stats.Shipments > 0 {
		stats.AverageTicket = stats.Revenue / float64(stats.Shipments)
	}
	if stats.ClientsCount > 0 {
		stats.ActivePercent = float64(active) / float64(stats.ClientsCount) * 100
	}
	return stats
}
