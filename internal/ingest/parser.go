// Package ingest parses raw delimited ledger text into customer
// aggregates. Malformed rows are skipped silently; a file that yields no
// valid rows produces an empty list, which downstream components treat
// as a legitimate zero-result dataset.
package ingest

import (
	"sort"
	"strconv"
	"strings"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// taxIDWidth is the padded width of a normalized tax id. CPF (11) and
// CNPJ (14) digits both fit; left-padding absorbs leading-zero loss
// introduced by spreadsheet round-trips.
const taxIDWidth = 14

// sentinel value used in the source sheets for "tax id not informed".
const notInformed = "N/I"

// Result carries the aggregates built from one ledger payload plus
// ingestion counters for observability.
type Result struct {
	Clients      []domain.Client
	RowsAccepted int
	RowsRejected int
}

// ParseLedger parses a full delimited payload (comma or semicolon
// separated, header row skipped) into one aggregate per normalized
// customer key. Histories come out chronologically sorted.
func ParseLedger(text string) Result {
	var res Result
	lines := splitLines(text)

	byKey := make(map[string]*domain.Client)
	order := make([]string, 0)

	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols := splitLine(line)
		if len(cols) < 5 {
			res.RowsRejected++
			continue
		}

		dateStr := cols[0]
		origin := valueOr(cols[1], "N/A")
		destination := valueOr(cols[2], "N/A")
		value := ParseCurrency(cols[3])
		taxID := cols[4]
		name := taxID
		if len(cols) > 5 && cols[5] != "" {
			name = cols[5]
		}

		if taxID == "" || taxID == notInformed {
			res.RowsRejected++
			continue
		}

		key := NormalizeTaxID(taxID)

		client, ok := byKey[key]
		if !ok {
			client = &domain.Client{
				ID:          key,
				Name:        name,
				CNPJ:        taxID,
				History:     []domain.Transaction{},
				Origin:      []string{},
				Destination: []string{},
			}
			byKey[key] = client
			order = append(order, key)
		}

		iso, ok := ParseDate(dateStr)
		if ok {
			year, _ := strconv.Atoi(iso[:4])
			month, _ := strconv.Atoi(iso[5:7])

			client.History = append(client.History, domain.Transaction{
				Date:        iso,
				Value:       value,
				Origin:      origin,
				Destination: destination,
				Year:        year,
				Month:       month,
			})

			// ISO strings are zero-padded, so string comparison is
			// chronological comparison.
			if client.LastShipmentDate == "" || iso > client.LastShipmentDate {
				client.LastShipmentDate = iso
			}
			if client.FirstShipmentDate == "" || iso < client.FirstShipmentDate {
				client.FirstShipmentDate = iso
			}
			res.RowsAccepted++
		} else {
			// The monetary value of this line is lost from aggregates,
			// but the line does not abort parsing of the file.
			res.RowsRejected++
		}

		if origin != "N/A" && !contains(client.Origin, origin) {
			client.Origin = append(client.Origin, origin)
		}
		if destination != "N/A" && !contains(client.Destination, destination) {
			client.Destination = append(client.Destination, destination)
		}
	}

	clients := make([]domain.Client, 0, len(order))
	for _, key := range order {
		c := byKey[key]
		if len(c.History) == 0 {
			// A customer with zero valid transactions is never emitted.
			continue
		}
		sort.SliceStable(c.History, func(i, j int) bool {
			return c.History[i].Date < c.History[j].Date
		})
		// Reconcile bounds against the sorted history; defends against
		// any edge case in the incremental tracking above.
		c.FirstShipmentDate = c.History[0].Date
		c.LastShipmentDate = c.History[len(c.History)-1].Date
		clients = append(clients, *c)
	}

	res.Clients = clients
	return res
}

// NormalizeTaxID strips non-digits and left-pads the result to 14 digits
// so CPF/CNPJ length variance and leading-zero loss collapse onto one
// customer key. Input with no digits at all falls back to the raw label.
func NormalizeTaxID(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if digits == "" {
		return raw
	}
	if len(digits) < taxIDWidth {
		return strings.Repeat("0", taxIDWidth-len(digits)) + digits
	}
	return digits
}

// ParseCurrency parses a Brazilian-formatted monetary value ("R$ 1.500,00"):
// '.' is a thousands separator, ',' the decimal separator. Non-parseable
// input degrades to zero, never an error.
func ParseCurrency(raw string) float64 {
	if raw == "" {
		return 0
	}
	clean := strings.NewReplacer(`"`, "", "'", "", "R", "", "$", "", " ", "", "\t", "", ".", "").Replace(raw)
	clean = strings.ReplaceAll(clean, ",", ".")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v != v { // reject NaN
		return 0
	}
	return v
}

// ParseDate accepts DD/MM/YYYY, DD/MM/YY (assumed 20xx) or YYYY-MM-DD,
// truncating any trailing time-of-day component. It returns the ISO
// YYYY-MM-DD form and whether the input was a valid in-range date.
func ParseDate(raw string) (string, bool) {
	clean := strings.Trim(strings.TrimSpace(raw), `"`)
	if clean == "" {
		return "", false
	}
	if idx := strings.IndexByte(clean, ' '); idx >= 0 {
		clean = clean[:idx]
	}

	if strings.Contains(clean, "/") {
		parts := strings.Split(clean, "/")
		if len(parts) != 3 {
			return "", false
		}
		day, err1 := strconv.Atoi(parts[0])
		month, err2 := strconv.Atoi(parts[1])
		year, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return "", false
		}
		if year < 100 {
			year += 2000
		}
		if day < 1 || day > 31 || month < 1 || month > 12 || year <= 1990 || year >= 2100 {
			return "", false
		}
		return isoDate(year, month, day), true
	}

	if strings.Contains(clean, "-") {
		parts := strings.Split(clean, "-")
		if len(parts) == 3 && len(parts[0]) == 4 {
			year, err1 := strconv.Atoi(parts[0])
			month, err2 := strconv.Atoi(parts[1])
			day, err3 := strconv.Atoi(parts[2])
			if err1 != nil || err2 != nil || err3 != nil {
				return "", false
			}
			if day < 1 || day > 31 || month < 1 || month > 12 || year <= 1990 || year >= 2100 {
				return "", false
			}
			return isoDate(year, month, day), true
		}
	}

	return "", false
}

func isoDate(year, month, day int) string {
	return strconv.Itoa(year) + "-" + pad2(month) + "-" + pad2(day)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// splitLine tokenizes one row respecting quoted fields: a quote toggles
// the in-quotes state and the delimiter only separates outside quotes.
// The delimiter is ';' when present in the line, ',' otherwise.
func splitLine(line string) []string {
	sep := byte(',')
	if strings.IndexByte(line, ';') >= 0 {
		sep = ';'
	}

	var result []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == sep && !inQuotes:
			result = append(result, cleanField(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	result = append(result, cleanField(current.String()))
	return result
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return s
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
