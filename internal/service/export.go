package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// reactivationAfterDays is the inactivity threshold for the export:
// anything past it is a reactivation candidate.
const reactivationAfterDays = 90

// BuildReactivationCSV renders the reactivation worklist as a
// semicolon-separated spreadsheet: every client inactive for more than
// 90 days, ordered by opportunity weight then historical ticket, with
// Brazilian decimal-comma money formatting.
func BuildReactivationCSV(clients []domain.Client) string {
	candidates := make([]domain.Client, 0)
	for i := range clients {
		if clients[i].Recency > reactivationAfterDays {
			candidates = append(candidates, clients[i])
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		wi, wj := opportunityWeight(candidates[i].OpportunityTag), opportunityWeight(candidates[j].OpportunityTag)
		if wi != wj {
			return wi > wj
		}
		return candidates[i].GlobalAverageTicket() > candidates[j].GlobalAverageTicket()
	})

	var b strings.Builder
	b.WriteString("Nome do Cliente;CNPJ/CPF;Ultimo Envio;Dias Inativo;Ticket Medio;Total Historico;Classificacao IA\n")

	for i := range candidates {
		c := &candidates[i]
		fields := []string{
			csvQuote(c.Name),
			csvQuote(c.CNPJ),
			displayDate(c.LastShipmentDate),
			fmt.Sprintf("%d", c.Recency),
			decimalComma(c.GlobalAverageTicket()),
			decimalComma(c.GlobalRevenue()),
			csvQuote(classification(c)),
		}
		b.WriteString(strings.Join(fields, ";"))
		b.WriteByte('\n')
	}
	return b.String()
}

func opportunityWeight(tag string) int {
	switch tag {
	case domain.OpportunityPremium:
		return 3
	case domain.OpportunityHighVolume:
		return 2
	case domain.OpportunityRecoverable:
		return 1
	default:
		return 0
	}
}

func classification(c *domain.Client) string {
	if c.OpportunityTag != "" {
		return c.OpportunityTag
	}
	return string(c.Segment)
}

// csvQuote wraps a text field in double quotes, doubling any embedded
// quotes per RFC 4180.
func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// decimalComma formats a money value with two decimals and a comma
// separator, the way Brazilian spreadsheets expect it.
func decimalComma(v float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}

// displayDate turns an ISO date into DD/MM/YYYY for the spreadsheet.
// Anything malformed passes through unchanged.
func displayDate(iso string) string {
	parts := strings.SplitN(iso, "-", 3)
	if len(parts) != 3 {
		return iso
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}
