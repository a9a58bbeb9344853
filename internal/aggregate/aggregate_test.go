package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmanage/propsync/internal/model"
)

func TestOccupancyRate(t *testing.T) {
	cases := []struct {
		occupied, total, want int
	}{
		{2, 3, 67},
		{0, 0, 0},
		{24, 24, 100},
		{1, 8, 13},
		{1, 3, 33},
		{0, 10, 0},
		{5, -1, 0},
		{5, 4, 125},
		{-1, 4, -25},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, OccupancyRate(tc.occupied, tc.total), "%d/%d", tc.occupied, tc.total)
	}
}

func ticket(id string, priority model.TicketPriority, status model.TicketStatus) model.MaintenanceTicket {
	return model.MaintenanceTicket{ID: id, Title: "ticket " + id, Priority: priority, Status: status}
}

func ids(tickets []model.MaintenanceTicket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.ID
	}
	return out
}

func TestSortByPriorityIsStable(t *testing.T) {
	tickets := []model.MaintenanceTicket{
		ticket("a", model.PriorityLow, model.TicketOpen),
		ticket("b", model.PriorityUrgent, model.TicketOpen),
		ticket("c", model.PriorityHigh, model.TicketOpen),
		ticket("d", model.PriorityUrgent, model.TicketOpen),
		ticket("e", model.TicketPriority("SOMEDAY"), model.TicketOpen),
		ticket("f", model.PriorityMedium, model.TicketOpen),
	}
	sorted := SortByPriority(tickets)
	assert.Equal(t, []string{"b", "d", "c", "f", "a", "e"}, ids(sorted))
	assert.Equal(t, "a", tickets[0].ID, "input is not reordered")
}

func TestActiveTicketsDropsTerminalStatuses(t *testing.T) {
	tickets := []model.MaintenanceTicket{
		ticket("closed", model.PriorityUrgent, model.TicketClosed),
		ticket("low", model.PriorityLow, model.TicketWaiting),
		ticket("resolved", model.PriorityHigh, model.TicketResolved),
		ticket("high", model.PriorityHigh, model.TicketInProgress),
	}
	assert.Equal(t, []string{"high", "low"}, ids(ActiveTickets(tickets)))
}

func TestStatusCountsOmitsUnseenStatuses(t *testing.T) {
	tickets := []model.MaintenanceTicket{
		ticket("1", model.PriorityLow, model.TicketOpen),
		ticket("2", model.PriorityLow, model.TicketOpen),
		ticket("3", model.PriorityLow, model.TicketResolved),
	}
	counts := StatusCounts(tickets, func(t model.MaintenanceTicket) model.TicketStatus { return t.Status })
	assert.Equal(t, map[model.TicketStatus]int{model.TicketOpen: 2, model.TicketResolved: 1}, counts)
	_, seen := counts[model.TicketClosed]
	assert.False(t, seen)
}

func TestRevenueByMonthPassesBucketsThrough(t *testing.T) {
	stats := &model.DashboardStats{RevenueByMonth: []model.MonthlyRevenue{
		{Month: "Mar", Revenue: 300},
		{Month: "Jan", Revenue: 100},
		{Month: "", Revenue: 999},
		{Month: "Feb", Revenue: 200},
	}}
	buckets := RevenueByMonth(stats)
	require.Len(t, buckets, 3)
	assert.Equal(t, "Mar", buckets[0].Month, "source order is kept")
	assert.Equal(t, "Feb", buckets[2].Month)
	assert.Nil(t, RevenueByMonth(nil))

	top := MaxRevenue(buckets)
	assert.Equal(t, 300.0, top)
	assert.Equal(t, 33, RevenueShare(buckets[1], top))
	assert.Equal(t, 0, RevenueShare(buckets[1], 0))
}

func TestSumPayments(t *testing.T) {
	totals := SumPayments([]model.Payment{
		{Amount: 1200, Status: model.PaymentCompleted},
		{Amount: 950, Status: model.PaymentCompleted},
		{Amount: 1100, Status: model.PaymentPending},
		{Amount: 875, Status: model.PaymentFailed},
		{Amount: 50, Status: model.PaymentRefunded},
	})
	assert.Equal(t, 2150.0, totals.Collected)
	assert.Equal(t, 1100.0, totals.Pending)
	assert.Equal(t, 875.0, totals.Overdue)
	assert.Equal(t, 50.0, totals.Refunded)
}

func TestRevenueByPropertyBucketsDanglingReferences(t *testing.T) {
	properties := []model.Property{{ID: "prop_001", Name: "Riverside Apartments"}}
	revenue := RevenueByProperty([]model.Payment{
		{PropertyID: "prop_001", Amount: 1000, Status: model.PaymentCompleted},
		{PropertyID: "prop_gone", Amount: 400, Status: model.PaymentCompleted},
		{PropertyID: "prop_001", Amount: 999, Status: model.PaymentPending},
	}, properties)
	assert.Equal(t, map[string]float64{"Riverside Apartments": 1000, UnknownProperty: 400}, revenue)
}

func TestFilterAndSortOperateOnCachedItems(t *testing.T) {
	properties := []model.Property{
		{ID: "1", Name: "Riverside Apartments", City: "Youngstown", Type: model.PropertyApartment},
		{ID: "2", Name: "Maple House", City: "Akron", Type: model.PropertyHouse},
		{ID: "3", Name: "Oak Condos", Address: "12 River Ln", City: "Canton", Type: model.PropertyCondo},
	}
	matched := Filter(properties, PropertyMatches("river", AllFilter))
	require.Len(t, matched, 2)

	matched = Filter(properties, PropertyMatches("river", string(model.PropertyCondo)))
	require.Len(t, matched, 1)
	assert.Equal(t, "3", matched[0].ID)

	byName := Sort(properties, func(a, b model.Property) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	assert.Equal(t, "Maple House", byName[0].Name)
	assert.Empty(t, Filter([]model.Property(nil), PropertyMatches("", "")))
}

func TestSearchMatchers(t *testing.T) {
	tenant := model.Tenant{User: model.User{Name: "Jordan Lee", Email: "jordan@example.com"}, LeaseStatus: model.LeaseActive}
	assert.True(t, TenantMatches("JORDAN", "")(tenant))
	assert.True(t, TenantMatches("example", "ACTIVE")(tenant))
	assert.False(t, TenantMatches("", "EXPIRED")(tenant))

	payment := model.Payment{Description: "Rent Payment", Status: model.PaymentPending}
	assert.True(t, PaymentMatches("rent", "ALL")(payment))
	assert.False(t, PaymentMatches("deposit", "")(payment))

	tk := model.MaintenanceTicket{Title: "Leaking faucet", Description: "Kitchen sink drips", Status: model.TicketOpen, Priority: model.PriorityHigh}
	assert.True(t, TicketMatches("sink", "OPEN", "HIGH")(tk))
	assert.False(t, TicketMatches("sink", "OPEN", "LOW")(tk))
}

func TestComputeDashboard(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	in := Inputs{
		Properties: []model.Property{
			{ID: "prop_001", Name: "Riverside Apartments", Units: 24, OccupiedUnits: 22, MonthlyRevenue: 28600},
			{ID: "prop_002", Name: "Maple House", Units: 1, OccupiedUnits: 0, MonthlyRevenue: 0},
		},
		Tenants: []model.Tenant{
			{ID: "ten_1", LeaseStatus: model.LeaseActive, LeaseEnd: now.Add(30 * 24 * time.Hour)},
			{ID: "ten_2", LeaseStatus: model.LeaseActive, LeaseEnd: now.Add(200 * 24 * time.Hour)},
			{ID: "ten_3", LeaseStatus: model.LeaseExpired, LeaseEnd: now.Add(10 * 24 * time.Hour)},
		},
		Payments: []model.Payment{
			{PropertyID: "prop_001", Amount: 1200, Status: model.PaymentCompleted},
			{PropertyID: "prop_001", Amount: 1100, Status: model.PaymentPending},
		},
		Tickets: []model.MaintenanceTicket{
			ticket("t1", model.PriorityLow, model.TicketOpen),
			ticket("t2", model.PriorityUrgent, model.TicketInProgress),
			ticket("t3", model.PriorityHigh, model.TicketClosed),
		},
		Remote: &model.DashboardStats{RevenueByMonth: []model.MonthlyRevenue{{Month: "Apr", Revenue: 28600}}},
		Now:    now,
	}

	stats := ComputeDashboard(in)
	assert.Equal(t, 2, stats.TotalProperties)
	assert.Equal(t, 25, stats.TotalUnits)
	assert.Equal(t, 88, stats.OccupancyRate)
	assert.Equal(t, 28600.0, stats.TotalRevenue)
	assert.Equal(t, 1, stats.PendingPayments)
	assert.Equal(t, 2, stats.OpenTickets)
	assert.Equal(t, []string{"t2", "t1"}, ids(stats.ActiveTickets))
	assert.Equal(t, 1, stats.ExpiringLeases)
	assert.Equal(t, 1200.0, stats.Payments.Collected)
	require.Len(t, stats.RecentPayments, 2)
	stats.RecentPayments[0].Amount = 1
	assert.Equal(t, 1200.0, in.Payments[0].Amount, "recent payments do not alias the input")
	assert.Equal(t, []model.PropertyOccupancy{
		{Property: "Riverside Apartments", Rate: 92},
		{Property: "Maple House", Rate: 0},
	}, stats.OccupancyByProperty)
	require.Len(t, stats.RevenueByMonth, 1)

	empty := ComputeDashboard(Inputs{Now: now})
	assert.Zero(t, empty.OccupancyRate)
	assert.Empty(t, empty.RecentPayments)
}

func TestFormatCurrency(t *testing.T) {
	cases := map[float64]string{
		0:         "$0.00",
		6720:      "$6,720.00",
		1234567.5: "$1,234,567.50",
		-1234.5:   "-$1,234.50",
		999.999:   "$1,000.00",
		12.05:     "$12.05",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatCurrency(in), "%v", in)
	}
}
