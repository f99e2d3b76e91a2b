package analytics

import (
	"fmt"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// Rule A (ticket collapse) parameters.
const (
	ticketWindow        = 3
	ticketDropRatio     = 0.70
	ticketActiveWithin  = 90
)

// Rule B (frequency break) parameters.
const (
	frequencyMinShipments = 5
	frequencyIntervalMult = 2.5
	frequencyFloorDays    = 15
)

// DetectAlerts scans the scored client set for ticket-value collapses
// and frequency breaks against each client's own historical baseline.
// Both rules may fire for the same client; they are emitted as separate
// alerts in a fixed order. Ids are derived from the client id so callers
// can track dismissals across recomputes.
func DetectAlerts(clients []domain.Client) []domain.Alert {
	var alerts []domain.Alert

	for i := range clients {
		client := &clients[i]

		if a := ticketCollapseAlert(client); a != nil {
			alerts = append(alerts, *a)
		}
		if a := frequencyBreakAlert(client); a != nil {
			alerts = append(alerts, *a)
		}
	}

	return alerts
}

// ticketCollapseAlert fires when the average of the last three shipments
// falls below 70% of the client's overall average ticket. Only evaluated
// for curve A/B clients still in flow; new clients' early volatility is
// expected, not anomalous.
func ticketCollapseAlert(client *domain.Client) *domain.Alert {
	if client.ABCCategory != domain.ABCCategoryA && client.ABCCategory != domain.ABCCategoryB {
		return nil
	}
	if client.Segment == domain.SegmentNew || client.Recency > ticketActiveWithin {
		return nil
	}

	history := client.History
	if len(history) == 0 {
		return nil
	}

	overallTicket := client.GlobalAverageTicket()
	if overallTicket <= 0 {
		return nil
	}

	window := ticketWindow
	if len(history) < window {
		window = len(history)
	}
	var recentSum float64
	for _, t := range history[len(history)-window:] {
		recentSum += t.Value
	}
	recentAvg := recentSum / float64(window)

	if recentAvg >= overallTicket*ticketDropRatio {
		return nil
	}

	drop := (overallTicket - recentAvg) / overallTicket * 100
	return &domain.Alert{
		ID:         fmt.Sprintf("alert-%s-ticket", client.ID),
		ClientID:   client.ID,
		ClientName: client.Name,
		Kind:       domain.AlertTicketDrop,
		Severity:   "high",
		Metric:     fmt.Sprintf("-%.0f%%", drop),
		Message:    "Queda no ticket médio (últimos 3 envios).",
		Client:     client,
	}
}

// frequencyBreakAlert fires when the days since the last shipment exceed
// 2.5x the client's typical inter-purchase interval (with a 15-day
// floor). Beyond 180 days the client is already classified as lost and
// a frequency alert would be redundant.
func frequencyBreakAlert(client *domain.Client) *domain.Alert {
	if client.TotalShipments <= frequencyMinShipments {
		return nil
	}

	span := DaysBetween(client.FirstShipmentDate, client.LastShipmentDate)
	typicalInterval := float64(span) / float64(client.TotalShipments)

	threshold := typicalInterval * frequencyIntervalMult
	if threshold < frequencyFloorDays {
		threshold = frequencyFloorDays
	}

	if float64(client.Recency) <= threshold || client.Recency >= lostAfterDays {
		return nil
	}

	return &domain.Alert{
		ID:         fmt.Sprintf("alert-%s-freq", client.ID),
		ClientID:   client.ID,
		ClientName: client.Name,
		Kind:       domain.AlertFrequencyDrop,
		Severity:   "medium",
		Metric:     fmt.Sprintf("%dd", client.Recency),
		Message:    fmt.Sprintf("Quebra de recorrência (cliente usualmente envia a cada %.0fd).", typicalInterval),
		Client:     client,
	}
}
