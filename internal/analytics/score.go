// Package analytics implements the scoring, projection and anomaly
// pipeline over ingested customer aggregates. Every function here is a
// pure function of its inputs: results are recomputed wholesale on each
// call and nothing is mutated in place.
package analytics

import (
	"sort"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// Segmentation thresholds, in days of recency against the reference date.
const (
	lostAfterDays   = 180
	atRiskAfterDays = 90
	newWithinDays   = 90
)

// championsRevenue is the global (unfiltered) revenue above which an
// active, established client counts as a champion.
const championsRevenue = 100_000

// ABC cumulative revenue-share boundaries.
const (
	abcBoundaryA = 0.80
	abcBoundaryB = 0.95
)

// Opportunity-tag thresholds over the global history of AT_RISK/LOST clients.
const (
	opportunityTicket   = 5_000
	opportunityRevenue  = 50_000
	opportunityShipment = 10
)

// Process scores every aggregate against the active filter and returns
// the filtered, segmented, ABC-tiered client set plus the revenue chart
// series. Recency and segmentation always read the global history;
// revenue, shipments and ticket read the filtered subset.
func Process(all []domain.Client, filter domain.FilterState) domain.ProcessResult {
	if len(all) == 0 {
		return domain.ProcessResult{
			Clients:               []domain.Client{},
			ChartData:             []domain.ChartDataPoint{},
			AvailableOrigins:      []string{},
			AvailableDestinations: []string{},
		}
	}

	yearSet := intSet(filter.Years)
	monthSet := intSet(filter.Months)
	clientSet := stringSet(filter.Clients)
	originSet := stringSet(filter.Origins)
	destSet := stringSet(filter.Destinations)
	segmentSet := make(map[domain.Segment]struct{}, len(filter.Segments))
	for _, s := range filter.Segments {
		segmentSet[s] = struct{}{}
	}

	hasClientFilter := len(clientSet) > 0
	hasSegmentFilter := len(segmentSet) > 0
	// Temporal/route filters decide whether a client with zero surviving
	// transactions is dropped; a pure id filter keeps it, scored at zero.
	hasSubsetFilter := len(yearSet) > 0 || len(monthSet) > 0 || len(originSet) > 0 || len(destSet) > 0

	referenceDate := ReferenceDate(all)

	allOrigins := make(map[string]struct{})
	allDestinations := make(map[string]struct{})
	for i := range all {
		for _, o := range all[i].Origin {
			allOrigins[o] = struct{}{}
		}
		for _, d := range all[i].Destination {
			allDestinations[d] = struct{}{}
		}
	}

	scored := make([]domain.Client, 0, len(all))
	var filteredHistory []domain.Transaction

	for i := range all {
		client := all[i]

		if hasClientFilter {
			if _, ok := clientSet[client.ID]; !ok {
				continue
			}
		}

		var revenue float64
		var shipments int
		var clientFiltered []domain.Transaction

		for _, t := range client.History {
			if len(yearSet) > 0 {
				if _, ok := yearSet[t.Year]; !ok {
					continue
				}
			}
			if len(monthSet) > 0 {
				if _, ok := monthSet[t.Month]; !ok {
					continue
				}
			}
			if len(originSet) > 0 {
				if _, ok := originSet[t.Origin]; !ok {
					continue
				}
			}
			if len(destSet) > 0 {
				if _, ok := destSet[t.Destination]; !ok {
					continue
				}
			}
			revenue += t.Value
			shipments++
			clientFiltered = append(clientFiltered, t)
		}

		if hasSubsetFilter && shipments == 0 {
			continue
		}

		recency := DaysBetween(client.LastShipmentDate, referenceDate)
		tenureDays := DaysBetween(client.FirstShipmentDate, referenceDate)

		segment := assignSegment(recency, tenureDays, client.GlobalRevenue())
		if hasSegmentFilter {
			if _, ok := segmentSet[segment]; !ok {
				continue
			}
		}

		filteredHistory = append(filteredHistory, clientFiltered...)

		healthValue := healthScore(segment, recency)

		averageTicket := float64(0)
		if shipments > 0 {
			averageTicket = revenue / float64(shipments)
		}

		client.TotalRevenue = revenue
		client.TotalShipments = shipments
		client.Monetary = revenue
		client.Frequency = shipments
		client.AverageTicket = averageTicket
		client.Recency = recency
		client.Segment = segment
		client.HealthValue = healthValue
		client.HealthScore = healthTier(healthValue)
		client.ABCCategory = domain.ABCCategoryC
		client.OpportunityTag = opportunityTag(segment, &client)

		scored = append(scored, client)
	}

	// ABC curve is relative to whatever subset survived filtering.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].TotalRevenue != scored[j].TotalRevenue {
			return scored[i].TotalRevenue > scored[j].TotalRevenue
		}
		return scored[i].ID < scored[j].ID
	})
	assignABC(scored)

	return domain.ProcessResult{
		ReferenceDate:         referenceDate,
		Clients:               scored,
		ChartData:             BuildChartSeries(filteredHistory, referenceDate),
		AvailableOrigins:      sortedKeys(allOrigins),
		AvailableDestinations: sortedKeys(allDestinations),
	}
}

// assignSegment applies the strict priority order: inactivity dominates
// tenure, which dominates revenue volume.
func assignSegment(recency, tenureDays int, globalRevenue float64) domain.Segment {
	switch {
	case recency > lostAfterDays:
		return domain.SegmentLost
	case recency > atRiskAfterDays:
		return domain.SegmentAtRisk
	case tenureDays <= newWithinDays:
		return domain.SegmentNew
	case globalRevenue > championsRevenue:
		return domain.SegmentChampions
	default:
		return domain.SegmentLoyal
	}
}

// healthScore produces the 0-100 health value for a segment/recency pair.
func healthScore(segment domain.Segment, recency int) int {
	switch segment {
	case domain.SegmentLost:
		return 10
	case domain.SegmentAtRisk:
		return 30
	}

	score := 70
	switch {
	case recency > 60:
		score -= 25
	case recency > 30:
		score -= 5
	}
	if recency < 15 {
		score += 15
	}
	if segment == domain.SegmentChampions {
		score += 10
	}
	if segment == domain.SegmentNew {
		score += 5
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func healthTier(score int) domain.HealthTier {
	switch {
	case score >= 80:
		return domain.HealthExcellent
	case score >= 60:
		return domain.HealthGood
	case score <= 30:
		return domain.HealthCritical
	default:
		return domain.HealthWarning
	}
}

// opportunityTag flags inactive clients showing recovery potential.
// Tags are mutually exclusive and checked in priority order over the
// global history.
func opportunityTag(segment domain.Segment, c *domain.Client) string {
	if segment != domain.SegmentAtRisk && segment != domain.SegmentLost {
		return ""
	}
	switch {
	case c.GlobalAverageTicket() > opportunityTicket:
		return domain.OpportunityPremium
	case c.GlobalRevenue() > opportunityRevenue:
		return domain.OpportunityHighVolume
	case len(c.History) > opportunityShipment:
		return domain.OpportunityRecoverable
	default:
		return ""
	}
}

// assignABC walks cumulative revenue share over a revenue-descending
// slice: tier A while share <= 80%, B while <= 95%, C beyond.
func assignABC(clients []domain.Client) {
	var total float64
	for i := range clients {
		total += clients[i].TotalRevenue
	}

	var accum float64
	for i := range clients {
		accum += clients[i].TotalRevenue
		share := 1.0
		if total > 0 {
			share = accum / total
		}
		switch {
		case share <= abcBoundaryA:
			clients[i].ABCCategory = domain.ABCCategoryA
		case share <= abcBoundaryB:
			clients[i].ABCCategory = domain.ABCCategoryB
		default:
			clients[i].ABCCategory = domain.ABCCategoryC
		}
	}
}

func intSet(values []int) map[int]struct{} {
	set := make(map[int]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
