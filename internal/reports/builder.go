// Package reports derives the management overview and the home dashboard from
// consumption records.
package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/pricing"
	"github.com/marmitas/backoffice/internal/shared"
)

const (
	seriesMonths = 6
	topCompanies = 5
	recentLimit  = 5
)

var monthAbbr = [...]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// MonthLabel renders a short pt-BR month label such as "mar/24".
func MonthLabel(month, year int) string {
	return fmt.Sprintf("%s/%02d", monthAbbr[month-1], year%100)
}

// MonthPoint is one month of the revenue and meals series.
type MonthPoint struct {
	Month   int             `json:"month"`
	Year    int             `json:"year"`
	Label   string          `json:"label"`
	Meals   int             `json:"meals"`
	Revenue decimal.Decimal `json:"revenue"`
}

// SizeTotals is the consumption of one meal size.
type SizeTotals struct {
	Size     pricing.Size    `json:"size"`
	Quantity int             `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

// CompanyRank is a company in the top-by-value list.
type CompanyRank struct {
	CompanyID int64           `json:"company_id"`
	Name      string          `json:"name"`
	Meals     int             `json:"meals"`
	Value     decimal.Decimal `json:"value"`
}

// OverviewStats are the headline numbers of the selected month.
type OverviewStats struct {
	TotalMeals      int             `json:"total_meals"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	ActiveCompanies int             `json:"active_companies"`
	AverageTicket   decimal.Decimal `json:"average_ticket"`
	MonthlyGrowth   decimal.Decimal `json:"monthly_growth"`
}

// Overview is the management report of one month.
type Overview struct {
	Month        int           `json:"month"`
	Year         int           `json:"year"`
	Series       []MonthPoint  `json:"series"`
	BySize       []SizeTotals  `json:"by_size"`
	TopCompanies []CompanyRank `json:"top_companies"`
	Stats        OverviewStats `json:"stats"`
}

// SeriesStart returns the first month of the series ending at month/year.
func SeriesStart(month, year int) (int, int) {
	return shared.PreviousMonth(month, year, seriesMonths-1)
}

// BuildOverview aggregates records of the six months ending at month/year.
// Records outside that window are ignored.
func BuildOverview(month, year int, records []consumption.Record, activeCompanies int) Overview {
	ov := Overview{Month: month, Year: year}

	index := make(map[int]int, seriesMonths)
	fromMonth, fromYear := SeriesStart(month, year)
	for i := 0; i < seriesMonths; i++ {
		m, y := shared.PreviousMonth(fromMonth, fromYear, -i)
		index[y*12+m] = i
		ov.Series = append(ov.Series, MonthPoint{Month: m, Year: y, Label: MonthLabel(m, y), Revenue: decimal.Zero})
	}

	ov.BySize = make([]SizeTotals, len(pricing.Sizes))
	bySize := make(map[pricing.Size]int, len(pricing.Sizes))
	for i, size := range pricing.Sizes {
		ov.BySize[i] = SizeTotals{Size: size, Value: decimal.Zero}
		bySize[size] = i
	}
	ranks := make(map[int64]*CompanyRank)

	for _, r := range records {
		i, ok := index[r.Date.Year()*12+int(r.Date.Month())]
		if !ok {
			continue
		}
		ov.Series[i].Meals += r.Quantity
		ov.Series[i].Revenue = ov.Series[i].Revenue.Add(r.TotalPrice)
		if i != seriesMonths-1 {
			continue
		}
		if j, ok := bySize[r.Size]; ok {
			ov.BySize[j].Quantity += r.Quantity
			ov.BySize[j].Value = ov.BySize[j].Value.Add(r.TotalPrice)
		}
		rank, ok := ranks[r.CompanyID]
		if !ok {
			rank = &CompanyRank{CompanyID: r.CompanyID, Name: r.CompanyName, Value: decimal.Zero}
			ranks[r.CompanyID] = rank
		}
		rank.Meals += r.Quantity
		rank.Value = rank.Value.Add(r.TotalPrice)
	}

	ov.TopCompanies = make([]CompanyRank, 0, len(ranks))
	for _, rank := range ranks {
		ov.TopCompanies = append(ov.TopCompanies, *rank)
	}
	sort.Slice(ov.TopCompanies, func(i, j int) bool {
		a, b := ov.TopCompanies[i], ov.TopCompanies[j]
		if c := a.Value.Cmp(b.Value); c != 0 {
			return c > 0
		}
		return a.CompanyID < b.CompanyID
	})
	if len(ov.TopCompanies) > topCompanies {
		ov.TopCompanies = ov.TopCompanies[:topCompanies]
	}

	current := ov.Series[seriesMonths-1]
	previous := ov.Series[seriesMonths-2]
	ov.Stats = OverviewStats{
		TotalMeals:      current.Meals,
		TotalRevenue:    current.Revenue,
		ActiveCompanies: activeCompanies,
		AverageTicket:   decimal.Zero,
		MonthlyGrowth:   growth(current.Revenue, previous.Revenue),
	}
	if current.Meals > 0 {
		ov.Stats.AverageTicket = current.Revenue.Div(decimal.NewFromInt(int64(current.Meals))).Round(2)
	}
	return ov
}

// growth is the percentage change from previous to current. It is zero when
// previous is not positive.
func growth(current, previous decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2)
}

// DashboardInput carries what the home dashboard is computed from.
type DashboardInput struct {
	Today           time.Time
	Records         []consumption.Record
	PendingClosures int
	ActiveCompanies int
}

// Dashboard holds the home screen cards.
type Dashboard struct {
	Date            time.Time            `json:"date"`
	OrdersToday     int                  `json:"orders_today"`
	OrdersYesterday int                  `json:"orders_yesterday"`
	GrowthToday     decimal.Decimal      `json:"growth_today"`
	MonthRevenue    decimal.Decimal      `json:"month_revenue"`
	PendingClosures int                  `json:"pending_closures"`
	ActiveCompanies int                  `json:"active_companies"`
	Recent          []consumption.Record `json:"recent"`
}

// BuildDashboard counts today's and yesterday's orders and sums the revenue
// of today's month. Records must be ordered newest first.
func BuildDashboard(in DashboardInput) Dashboard {
	today := shared.DateOnly(in.Today)
	yesterday := today.AddDate(0, 0, -1)
	monthStart, monthEnd := shared.MonthRange(int(today.Month()), today.Year())

	d := Dashboard{
		Date:            today,
		MonthRevenue:    decimal.Zero,
		PendingClosures: in.PendingClosures,
		ActiveCompanies: in.ActiveCompanies,
		Recent:          []consumption.Record{},
	}
	for _, r := range in.Records {
		day := shared.DateOnly(r.Date)
		switch {
		case day.Equal(today):
			d.OrdersToday++
		case day.Equal(yesterday):
			d.OrdersYesterday++
		}
		if !day.Before(monthStart) && day.Before(monthEnd) {
			d.MonthRevenue = d.MonthRevenue.Add(r.TotalPrice)
		}
		if !day.After(today) && len(d.Recent) < recentLimit {
			d.Recent = append(d.Recent, r)
		}
	}
	d.GrowthToday = growth(decimal.NewFromInt(int64(d.OrdersToday)), decimal.NewFromInt(int64(d.OrdersYesterday)))
	return d
}
