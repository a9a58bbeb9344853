package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/propmanage/propsync/internal/aggregate"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/syncstore"
)

const dateLayout = "2006-01-02"

// fetch reads key through the store and asserts the loader's result type.
func fetch[T any](ctx context.Context, a *app, key syncstore.QueryKey) (T, error) {
	var zero T
	value, err := a.store.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}
	out, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %T cached for %s", value, key)
	}
	return out, nil
}

func mutate[T any](ctx context.Context, a *app, m syncstore.Mutation) (T, error) {
	var zero T
	value, err := a.mutations.Mutate(ctx, m)
	if err != nil {
		return zero, err
	}
	out, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %T returned by %s", value, m.Name)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.header, "\t"))
	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// emit prints v as JSON or t as a table depending on the output flag.
func (a *app) emit(v any, t *table) error {
	if a.json {
		return writeJSON(a.out, v)
	}
	return t.write(a.out)
}

func emitPage[T any](a *app, page model.Page[T], t *table) error {
	if a.json {
		return writeJSON(a.out, page)
	}
	if len(page.Items) == 0 {
		fmt.Fprintln(a.out, "no results")
		return nil
	}
	if err := t.write(a.out); err != nil {
		return err
	}
	fmt.Fprintln(a.out, pageFooter(page.Page, page.TotalPages, page.Total))
	return nil
}

func pageFooter(page, totalPages, total int) string {
	if totalPages < 1 {
		totalPages = 1
	}
	return fmt.Sprintf("page %d/%d (%d total)", page, totalPages, total)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatDate(*t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func percent(rate int) string {
	return strconv.Itoa(rate) + "%"
}

func propertiesTable(items []model.Property) *table {
	t := &table{header: []string{"ID", "NAME", "CITY", "TYPE", "STATUS", "OCCUPANCY", "REVENUE"}}
	for _, p := range items {
		t.add(p.ID, p.Name, p.City, string(p.Type), string(p.Status),
			fmt.Sprintf("%d/%d", p.OccupiedUnits, p.Units),
			aggregate.FormatCurrency(p.MonthlyRevenue))
	}
	return t
}

func unitsTable(items []model.Unit) *table {
	t := &table{header: []string{"ID", "UNIT", "FLOOR", "BEDS", "BATHS", "SQFT", "RENT", "STATUS"}}
	for _, u := range items {
		t.add(u.ID, u.UnitNumber, strconv.Itoa(u.Floor), strconv.Itoa(u.Bedrooms),
			strconv.FormatFloat(u.Bathrooms, 'f', -1, 64), strconv.Itoa(u.Sqft),
			aggregate.FormatCurrency(u.Rent), string(u.Status))
	}
	return t
}

func tenantsTable(items []model.Tenant) *table {
	t := &table{header: []string{"ID", "NAME", "EMAIL", "UNIT", "LEASE ENDS", "RENT", "LEASE"}}
	for _, tn := range items {
		t.add(tn.ID, tn.User.Name, tn.User.Email, tn.UnitID, formatDate(tn.LeaseEnd),
			aggregate.FormatCurrency(tn.MonthlyRent), string(tn.LeaseStatus))
	}
	return t
}

func paymentsTable(items []model.Payment) *table {
	t := &table{header: []string{"ID", "TENANT", "AMOUNT", "STATUS", "METHOD", "DUE", "PAID"}}
	for _, p := range items {
		t.add(p.ID, p.TenantID, aggregate.FormatCurrency(p.Amount), string(p.Status),
			string(p.Method), formatDate(p.DueDate), formatDatePtr(p.PaidDate))
	}
	return t
}

func ticketsTable(items []model.MaintenanceTicket) *table {
	t := &table{header: []string{"ID", "PRIORITY", "STATUS", "CATEGORY", "TITLE", "ASSIGNED"}}
	for _, tk := range items {
		t.add(tk.ID, string(tk.Priority), string(tk.Status), string(tk.Category), tk.Title, orDash(tk.AssignedTo))
	}
	return t
}

func notificationsTable(items []model.Notification) *table {
	t := &table{header: []string{"ID", "", "TYPE", "TITLE", "CREATED"}}
	for _, n := range items {
		unread := "*"
		if n.Read {
			unread = ""
		}
		t.add(n.ID, unread, string(n.Type), n.Title, formatDate(n.CreatedAt))
	}
	return t
}

// writeDashboard renders the derived dashboard as a summary block followed by
// monthly revenue and the active ticket queue.
func writeDashboard(w io.Writer, d aggregate.DerivedStats) error {
	summary := &table{header: []string{"METRIC", "VALUE"}}
	summary.add("Properties", strconv.Itoa(d.TotalProperties))
	summary.add("Units", fmt.Sprintf("%d (%d occupied, %s)", d.TotalUnits, d.OccupiedUnits, percent(d.OccupancyRate)))
	summary.add("Monthly revenue", aggregate.FormatCurrency(d.TotalRevenue))
	summary.add("Collected", aggregate.FormatCurrency(d.Payments.Collected))
	summary.add("Outstanding", aggregate.FormatCurrency(d.Payments.Pending))
	summary.add("Pending payments", strconv.Itoa(d.PendingPayments))
	summary.add("Open tickets", strconv.Itoa(d.OpenTickets))
	summary.add("Expiring leases", strconv.Itoa(d.ExpiringLeases))
	if err := summary.write(w); err != nil {
		return err
	}

	if len(d.RevenueByMonth) > 0 {
		fmt.Fprintln(w)
		months := &table{header: []string{"MONTH", "REVENUE", "EXPENSES"}}
		for _, m := range d.RevenueByMonth {
			months.add(m.Month, aggregate.FormatCurrency(m.Revenue), aggregate.FormatCurrency(m.Expenses))
		}
		if err := months.write(w); err != nil {
			return err
		}
	}

	if len(d.OccupancyByProperty) > 0 {
		fmt.Fprintln(w)
		occ := &table{header: []string{"PROPERTY", "OCCUPANCY", "COLLECTED"}}
		for _, o := range d.OccupancyByProperty {
			occ.add(o.Property, percent(o.Rate), aggregate.FormatCurrency(d.RevenueByProperty[o.Property]))
		}
		if err := occ.write(w); err != nil {
			return err
		}
	}

	if len(d.ActiveTickets) > 0 {
		fmt.Fprintln(w)
		if err := ticketsTable(d.ActiveTickets).write(w); err != nil {
			return err
		}
	}
	return nil
}

// dashboardLine is the one-line status watch prints per refresh.
func dashboardLine(at time.Time, stats model.DashboardStats) string {
	return fmt.Sprintf("%s  %d properties  %d units  %s occupied  %s revenue  %d pending payments  %d open tickets",
		at.Format("15:04:05"),
		stats.TotalProperties,
		stats.TotalUnits,
		percent(stats.OccupancyRate),
		aggregate.FormatCurrency(stats.TotalRevenue),
		stats.PendingPayments,
		stats.OpenTickets,
	)
}

func stateLine(at time.Time, state syncstore.State) (string, bool) {
	switch state.Phase {
	case syncstore.PhaseSuccess:
		stats, ok := state.Value.(model.DashboardStats)
		if !ok {
			return "", false
		}
		return dashboardLine(at, stats), true
	case syncstore.PhaseFailure:
		if state.Code != 0 {
			return fmt.Sprintf("%s  refresh failed: %s (HTTP %d)", at.Format("15:04:05"), state.Message, state.Code), true
		}
		return fmt.Sprintf("%s  refresh failed: %s", at.Format("15:04:05"), state.Message), true
	default:
		return "", false
	}
}
