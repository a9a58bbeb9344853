// Package aggregate derives dashboard figures and filtered views from cached
// collections. Every function is pure and never fails; missing data yields
// zero values.
package aggregate

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/propmanage/propsync/internal/model"
)

// AllFilter is the sentinel a filter control uses for "no restriction".
const AllFilter = "ALL"

// UnknownProperty buckets figures whose property reference dangles.
const UnknownProperty = "unknown"

// OccupancyRate is the occupied share of total as a whole percentage,
// rounded half up. It is 0 when there are no units. Inconsistent counts are
// reported as they are, so the rate may leave [0,100].
func OccupancyRate(occupied, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(100*float64(occupied)/float64(total) + 0.5))
}

// Filter returns the items of the cached page that satisfy keep.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Sort returns a stably sorted copy of items.
func Sort[T any](items []T, compare func(a, b T) int) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, compare)
	return out
}

// StatusCounts tallies items per status. Statuses with no items are absent.
func StatusCounts[T any, S comparable](items []T, statusOf func(T) S) map[S]int {
	counts := make(map[S]int)
	for _, item := range items {
		counts[statusOf(item)]++
	}
	return counts
}

// RevenueByMonth returns the server's monthly buckets in the order received.
// Buckets without a label are dropped; nothing is re-bucketed.
func RevenueByMonth(stats *model.DashboardStats) []model.MonthlyRevenue {
	if stats == nil {
		return nil
	}
	return Filter(stats.RevenueByMonth, func(b model.MonthlyRevenue) bool {
		return strings.TrimSpace(b.Month) != ""
	})
}

// MaxRevenue is the largest bucket revenue, used to scale a bar chart.
func MaxRevenue(buckets []model.MonthlyRevenue) float64 {
	var top float64
	for _, b := range buckets {
		top = max(top, b.Revenue)
	}
	return top
}

// RevenueShare is a bucket's height relative to top as a whole percentage.
func RevenueShare(b model.MonthlyRevenue, top float64) int {
	if top <= 0 || b.Revenue <= 0 {
		return 0
	}
	return int(b.Revenue/top*100 + 0.5)
}

func priorityRank(p model.TicketPriority) int {
	switch p {
	case model.PriorityUrgent:
		return 0
	case model.PriorityHigh:
		return 1
	case model.PriorityMedium:
		return 2
	case model.PriorityLow:
		return 3
	}
	return 4
}

// ComparePriority orders URGENT before HIGH before MEDIUM before LOW;
// unknown priorities sort last.
func ComparePriority(a, b model.TicketPriority) int {
	return cmp.Compare(priorityRank(a), priorityRank(b))
}

// SortByPriority stably orders tickets by priority.
func SortByPriority(tickets []model.MaintenanceTicket) []model.MaintenanceTicket {
	return Sort(tickets, func(a, b model.MaintenanceTicket) int {
		return ComparePriority(a.Priority, b.Priority)
	})
}

// ActiveTickets drops resolved and closed tickets and orders the rest by priority.
func ActiveTickets(tickets []model.MaintenanceTicket) []model.MaintenanceTicket {
	return SortByPriority(Filter(tickets, func(t model.MaintenanceTicket) bool {
		return !t.Status.Terminal()
	}))
}

type PaymentTotals struct {
	Collected float64 `json:"collected"`
	Pending   float64 `json:"pending"`
	Overdue   float64 `json:"overdue"`
	Refunded  float64 `json:"refunded"`
}

// SumPayments totals amounts by outcome: completed payments are collected
// and failed ones are overdue.
func SumPayments(payments []model.Payment) PaymentTotals {
	var totals PaymentTotals
	for _, p := range payments {
		switch p.Status {
		case model.PaymentCompleted:
			totals.Collected += p.Amount
		case model.PaymentPending:
			totals.Pending += p.Amount
		case model.PaymentFailed:
			totals.Overdue += p.Amount
		case model.PaymentRefunded:
			totals.Refunded += p.Amount
		}
	}
	return totals
}

// OccupancyByProperty reports each property's occupancy in input order.
func OccupancyByProperty(properties []model.Property) []model.PropertyOccupancy {
	out := make([]model.PropertyOccupancy, 0, len(properties))
	for _, p := range properties {
		out = append(out, model.PropertyOccupancy{
			Property: p.Name,
			Rate:     OccupancyRate(p.OccupiedUnits, p.Units),
		})
	}
	return out
}

// RevenueByProperty sums completed payments per property name. Payments whose
// property is not among properties are counted under UnknownProperty.
func RevenueByProperty(payments []model.Payment, properties []model.Property) map[string]float64 {
	names := make(map[string]string, len(properties))
	for _, p := range properties {
		names[p.ID] = p.Name
	}
	out := map[string]float64{}
	for _, pay := range payments {
		if pay.Status != model.PaymentCompleted {
			continue
		}
		name, ok := names[pay.PropertyID]
		if !ok {
			name = UnknownProperty
		}
		out[name] += pay.Amount
	}
	return out
}
