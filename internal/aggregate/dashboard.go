package aggregate

import (
	"slices"
	"time"

	"github.com/propmanage/propsync/internal/model"
)

const (
	DefaultLeaseWindow = 60 * 24 * time.Hour
	recentLimit        = 5
)

// Inputs are the cached collections a dashboard is derived from. Remote, when
// present, supplies the server-labelled monthly revenue buckets.
type Inputs struct {
	Properties  []model.Property
	Tenants     []model.Tenant
	Payments    []model.Payment
	Tickets     []model.MaintenanceTicket
	Remote      *model.DashboardStats
	Now         time.Time
	LeaseWindow time.Duration
}

type DerivedStats struct {
	TotalProperties     int                        `json:"totalProperties"`
	TotalUnits          int                        `json:"totalUnits"`
	OccupiedUnits       int                        `json:"occupiedUnits"`
	OccupancyRate       int                        `json:"occupancyRate"`
	TotalRevenue        float64                    `json:"totalRevenue"`
	PendingPayments     int                        `json:"pendingPayments"`
	OpenTickets         int                        `json:"openTickets"`
	ExpiringLeases      int                        `json:"expiringLeases"`
	Payments            PaymentTotals              `json:"payments"`
	TicketsByStatus     map[model.TicketStatus]int `json:"ticketsByStatus"`
	ActiveTickets       []model.MaintenanceTicket  `json:"activeTickets"`
	RecentPayments      []model.Payment            `json:"recentPayments"`
	RevenueByMonth      []model.MonthlyRevenue     `json:"revenueByMonth"`
	OccupancyByProperty []model.PropertyOccupancy  `json:"occupancyByProperty"`
	RevenueByProperty   map[string]float64         `json:"revenueByProperty"`
}

// ExpiringLeases returns active tenants whose lease ends within window of now.
func ExpiringLeases(tenants []model.Tenant, now time.Time, window time.Duration) []model.Tenant {
	if window <= 0 {
		window = DefaultLeaseWindow
	}
	horizon := now.Add(window)
	return Filter(tenants, func(t model.Tenant) bool {
		if t.LeaseStatus != model.LeaseActive || t.LeaseEnd.IsZero() {
			return false
		}
		return !t.LeaseEnd.Before(now) && !t.LeaseEnd.After(horizon)
	})
}

// ComputeDashboard derives the dashboard from cached collections only.
func ComputeDashboard(in Inputs) DerivedStats {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	out := DerivedStats{
		TotalProperties:     len(in.Properties),
		Payments:            SumPayments(in.Payments),
		TicketsByStatus:     StatusCounts(in.Tickets, func(t model.MaintenanceTicket) model.TicketStatus { return t.Status }),
		ActiveTickets:       ActiveTickets(in.Tickets),
		RevenueByMonth:      RevenueByMonth(in.Remote),
		OccupancyByProperty: OccupancyByProperty(in.Properties),
		RevenueByProperty:   RevenueByProperty(in.Payments, in.Properties),
		ExpiringLeases:      len(ExpiringLeases(in.Tenants, now, in.LeaseWindow)),
	}
	for _, p := range in.Properties {
		out.TotalUnits += p.Units
		out.OccupiedUnits += p.OccupiedUnits
		out.TotalRevenue += p.MonthlyRevenue
	}
	out.OccupancyRate = OccupancyRate(out.OccupiedUnits, out.TotalUnits)
	for _, p := range in.Payments {
		if p.Status == model.PaymentPending {
			out.PendingPayments++
		}
	}
	out.OpenTickets = len(out.ActiveTickets)
	out.RecentPayments = slices.Clone(in.Payments[:min(recentLimit, len(in.Payments))])
	return out
}
