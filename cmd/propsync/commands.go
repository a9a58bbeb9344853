package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/propmanage/propsync/internal/aggregate"
	"github.com/propmanage/propsync/internal/gateway"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/tokenfile"
)

type runFunc func(ctx context.Context, a *app, args []string) error

// authed wraps run so it only executes with a saved session.
func authed(current func() *app, run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := current()
		if err := a.requireSession(); err != nil {
			return err
		}
		return run(cmd.Context(), a, args)
	}
}

type pageFlags struct {
	page  int
	limit int
}

func (p *pageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.page, "page", 1, "page number")
	cmd.Flags().IntVar(&p.limit, "limit", 0, "page size (default client.page_size)")
}

func (p pageFlags) resolve(a *app) (int, int) {
	limit := p.limit
	if limit == 0 {
		limit = a.cfg.Client.PageSize
	}
	return p.page, limit
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func newLoginCmd(current func() *app) *cobra.Command {
	var email, password string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session token",
		Long: `Sign in with an email and password, or trade the saved refresh token for a
new session with --refresh. The password may also come from PROPSYNC_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			ctx := cmd.Context()
			var (
				resp model.AuthResponse
				err  error
			)
			if refresh {
				resp, err = a.gateway.RefreshToken(ctx, "")
			} else {
				if password == "" {
					password = os.Getenv("PROPSYNC_PASSWORD")
				}
				resp, err = a.gateway.Login(ctx, strings.TrimSpace(email), password)
			}
			if err != nil {
				return err
			}
			if a.tokenFile != "" {
				if err := tokenfile.Save(a.tokenFile, resp.Tokens); err != nil {
					return fmt.Errorf("save session: %w", err)
				}
			}
			if a.json {
				return writeJSON(a.out, resp.User)
			}
			fmt.Fprintf(a.out, "Logged in as %s <%s> (%s)\n", resp.User.Name, resp.User.Email, resp.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "renew the saved session with its refresh token")
	return cmd
}

func newLogoutCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := current()
			a.gateway.Logout()
			if a.tokenFile != "" {
				if err := tokenfile.Remove(a.tokenFile); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func newPropertiesCmd(current func() *app) *cobra.Command {
	var pf pageFlags
	var search string
	cmd := &cobra.Command{
		Use:     "properties",
		Aliases: []string{"props"},
		Short:   "List properties",
		Args:    cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			page, limit := pf.resolve(a)
			result, err := fetch[model.Page[model.Property]](ctx, a, gateway.PropertiesKey(gateway.PropertyFilter{
				Page:   page,
				Limit:  limit,
				Search: strings.TrimSpace(search),
			}))
			if err != nil {
				return err
			}
			return emitPage(a, result, propertiesTable(result.Items))
		}),
	}
	pf.bind(cmd)
	cmd.Flags().StringVar(&search, "search", "", "match name, address or city")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get PROPERTY_ID",
			Short: "Show one property",
			Args:  cobra.ExactArgs(1),
			RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
				p, err := fetch[model.Property](ctx, a, gateway.PropertyKey(args[0]))
				if err != nil {
					return err
				}
				return a.emit(p, propertiesTable([]model.Property{p}))
			}),
		},
		&cobra.Command{
			Use:   "units PROPERTY_ID",
			Short: "List the units of a property",
			Args:  cobra.ExactArgs(1),
			RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
				units, err := fetch[model.Page[model.Unit]](ctx, a, gateway.UnitsKey(args[0]))
				if err != nil {
					return err
				}
				return emitPage(a, units, unitsTable(units.Items))
			}),
		},
		newPropertyCreateCmd(current),
		&cobra.Command{
			Use:   "delete PROPERTY_ID",
			Short: "Delete a property and its units",
			Args:  cobra.ExactArgs(1),
			RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
				if _, err := a.mutations.Mutate(ctx, a.gateway.DeletePropertyMutation(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Deleted property %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func newPropertyCreateCmd(current func() *app) *cobra.Command {
	var in model.PropertyInput
	var propertyType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a property",
		Args:  cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			in.Type = model.PropertyType(upper(propertyType))
			p, err := mutate[model.Property](ctx, a, a.gateway.CreatePropertyMutation(in))
			if err != nil {
				return err
			}
			return a.emit(p, propertiesTable([]model.Property{p}))
		}),
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "property name")
	f.StringVar(&in.Address, "address", "", "street address")
	f.StringVar(&in.City, "city", "", "city")
	f.StringVar(&in.State, "state", "", "state")
	f.StringVar(&in.ZipCode, "zip", "", "zip code")
	f.StringVar(&propertyType, "type", string(model.PropertyApartment), "APARTMENT, HOUSE, CONDO, TOWNHOUSE or COMMERCIAL")
	f.IntVar(&in.Units, "units", 1, "number of units to create")
	f.StringVar(&in.Description, "description", "", "free-text description")
	f.StringSliceVar(&in.Amenities, "amenity", nil, "amenity (repeatable)")
	return cmd
}

func newTenantsCmd(current func() *app) *cobra.Command {
	var pf pageFlags
	var propertyID string
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			page, limit := pf.resolve(a)
			result, err := fetch[model.Page[model.Tenant]](ctx, a, gateway.TenantsKey(gateway.TenantFilter{
				Page:       page,
				Limit:      limit,
				PropertyID: propertyID,
			}))
			if err != nil {
				return err
			}
			return emitPage(a, result, tenantsTable(result.Items))
		}),
	}
	pf.bind(cmd)
	cmd.Flags().StringVar(&propertyID, "property", "", "only tenants of this property")
	cmd.AddCommand(&cobra.Command{
		Use:   "get TENANT_ID",
		Short: "Show one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
			tn, err := fetch[model.Tenant](ctx, a, gateway.TenantKey(args[0]))
			if err != nil {
				return err
			}
			return a.emit(tn, tenantsTable([]model.Tenant{tn}))
		}),
	})
	return cmd
}

func newPaymentsCmd(current func() *app) *cobra.Command {
	var pf pageFlags
	var status, tenantID string
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List payments",
		Args:  cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			page, limit := pf.resolve(a)
			result, err := fetch[model.Page[model.Payment]](ctx, a, gateway.PaymentsKey(gateway.PaymentFilter{
				Page:     page,
				Limit:    limit,
				Status:   model.PaymentStatus(upper(status)),
				TenantID: tenantID,
			}))
			if err != nil {
				return err
			}
			return emitPage(a, result, paymentsTable(result.Items))
		}),
	}
	pf.bind(cmd)
	cmd.Flags().StringVar(&status, "status", "", "PENDING, COMPLETED, FAILED or REFUNDED")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "only payments of this tenant")

	var in model.PaymentInput
	var method string
	create := &cobra.Command{
		Use:   "create",
		Short: "Record a payment",
		Args:  cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			in.Method = model.PaymentMethod(upper(method))
			p, err := mutate[model.Payment](ctx, a, a.gateway.CreatePaymentMutation(in))
			if err != nil {
				return err
			}
			return a.emit(p, paymentsTable([]model.Payment{p}))
		}),
	}
	create.Flags().StringVar(&in.TenantID, "tenant", "", "paying tenant")
	create.Flags().Float64Var(&in.Amount, "amount", 0, "amount in dollars")
	create.Flags().StringVar(&method, "method", "", "CARD, BANK_TRANSFER, CHECK or CASH")
	create.Flags().StringVar(&in.Description, "description", "", "what the payment covers")
	cmd.AddCommand(create)
	return cmd
}

func newTicketsCmd(current func() *app) *cobra.Command {
	var pf pageFlags
	var status, priority, propertyID string
	cmd := &cobra.Command{
		Use:     "tickets",
		Aliases: []string{"maintenance"},
		Short:   "List maintenance tickets, most urgent first",
		Args:    cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			page, limit := pf.resolve(a)
			result, err := fetch[model.Page[model.MaintenanceTicket]](ctx, a, gateway.TicketsKey(gateway.TicketFilter{
				Page:       page,
				Limit:      limit,
				Status:     model.TicketStatus(upper(status)),
				Priority:   model.TicketPriority(upper(priority)),
				PropertyID: propertyID,
			}))
			if err != nil {
				return err
			}
			result.Items = aggregate.SortByPriority(result.Items)
			return emitPage(a, result, ticketsTable(result.Items))
		}),
	}
	pf.bind(cmd)
	cmd.Flags().StringVar(&status, "status", "", "OPEN, IN_PROGRESS, WAITING, RESOLVED or CLOSED")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM, HIGH or URGENT")
	cmd.Flags().StringVar(&propertyID, "property", "", "only tickets of this property")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get TICKET_ID",
			Short: "Show one ticket",
			Args:  cobra.ExactArgs(1),
			RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
				tk, err := fetch[model.MaintenanceTicket](ctx, a, gateway.TicketKey(args[0]))
				if err != nil {
					return err
				}
				return a.emit(tk, ticketsTable([]model.MaintenanceTicket{tk}))
			}),
		},
		newTicketCreateCmd(current),
		&cobra.Command{
			Use:   "assign TICKET_ID ASSIGNEE",
			Short: "Assign a ticket",
			Args:  cobra.ExactArgs(2),
			RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
				tk, err := mutate[model.MaintenanceTicket](ctx, a, a.gateway.AssignTicketMutation(args[0], args[1]))
				if err != nil {
					return err
				}
				return a.emit(tk, ticketsTable([]model.MaintenanceTicket{tk}))
			}),
		},
		&cobra.Command{
			Use:   "status TICKET_ID STATUS",
			Short: "Move a ticket to a new status",
			Args:  cobra.ExactArgs(2),
			RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
				next := model.TicketStatus(upper(args[1]))
				tk, err := mutate[model.MaintenanceTicket](ctx, a, a.gateway.UpdateTicketMutation(args[0], model.TicketPatch{Status: &next}))
				if err != nil {
					return err
				}
				return a.emit(tk, ticketsTable([]model.MaintenanceTicket{tk}))
			}),
		},
	)
	return cmd
}

func newTicketCreateCmd(current func() *app) *cobra.Command {
	var in model.TicketInput
	var category, priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a maintenance ticket",
		Args:  cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			in.Category = model.TicketCategory(upper(category))
			in.Priority = model.TicketPriority(upper(priority))
			tk, err := mutate[model.MaintenanceTicket](ctx, a, a.gateway.CreateTicketMutation(in))
			if err != nil {
				return err
			}
			return a.emit(tk, ticketsTable([]model.MaintenanceTicket{tk}))
		}),
	}
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "short summary")
	f.StringVar(&in.Description, "description", "", "what is wrong")
	f.StringVar(&category, "category", string(model.CategoryGeneral), "PLUMBING, ELECTRICAL, HVAC, APPLIANCE, STRUCTURAL, PEST, GENERAL or OTHER")
	f.StringVar(&priority, "priority", "", "LOW, MEDIUM, HIGH or URGENT")
	f.StringVar(&in.PropertyID, "property", "", "affected property")
	f.StringVar(&in.UnitID, "unit", "", "affected unit")
	return cmd
}

func newNotificationsCmd(current func() *app) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"inbox"},
		Short:   "List your notifications",
		Args:    cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			result, err := fetch[model.Page[model.Notification]](ctx, a, gateway.NotificationsKey(unread))
			if err != nil {
				return err
			}
			return emitPage(a, result, notificationsTable(result.Items))
		}),
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	cmd.AddCommand(
		&cobra.Command{
			Use:   "read NOTIFICATION_ID",
			Short: "Mark a notification read",
			Args:  cobra.ExactArgs(1),
			RunE: authed(current, func(ctx context.Context, a *app, args []string) error {
				n, err := mutate[model.Notification](ctx, a, a.gateway.MarkNotificationReadMutation(args[0]))
				if err != nil {
					return err
				}
				return a.emit(n, notificationsTable([]model.Notification{n}))
			}),
		},
		&cobra.Command{
			Use:   "read-all",
			Short: "Mark every notification read",
			Args:  cobra.NoArgs,
			RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
				updated, err := mutate[int](ctx, a, a.gateway.MarkAllNotificationsReadMutation())
				if err != nil {
					return err
				}
				if a.json {
					return writeJSON(a.out, map[string]int{"updated": updated})
				}
				fmt.Fprintf(a.out, "Marked %d notifications read\n", updated)
				return nil
			}),
		},
	)
	return cmd
}

func newDashboardCmd(current func() *app) *cobra.Command {
	var leaseWindow time.Duration
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize the portfolio",
		Args:  cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			derived, err := loadDashboard(ctx, a, time.Now(), leaseWindow)
			if err != nil {
				return err
			}
			if a.json {
				return writeJSON(a.out, derived)
			}
			return writeDashboard(a.out, derived)
		}),
	}
	cmd.Flags().DurationVar(&leaseWindow, "lease-window", aggregate.DefaultLeaseWindow, "count leases ending within this window as expiring")
	return cmd
}

// loadDashboard reads the server stats and the first page of every
// collection concurrently, then derives the dashboard from them.
func loadDashboard(ctx context.Context, a *app, now time.Time, leaseWindow time.Duration) (aggregate.DerivedStats, error) {
	var (
		remote     model.DashboardStats
		properties model.Page[model.Property]
		tenants    model.Page[model.Tenant]
		payments   model.Page[model.Payment]
		tickets    model.Page[model.MaintenanceTicket]
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		remote, err = fetch[model.DashboardStats](ctx, a, gateway.DashboardKey())
		return err
	})
	g.Go(func() (err error) {
		properties, err = fetch[model.Page[model.Property]](ctx, a, gateway.PropertiesKey(gateway.PropertyFilter{Limit: model.MaxLimit}))
		return err
	})
	g.Go(func() (err error) {
		tenants, err = fetch[model.Page[model.Tenant]](ctx, a, gateway.TenantsKey(gateway.TenantFilter{Limit: model.MaxLimit}))
		return err
	})
	g.Go(func() (err error) {
		payments, err = fetch[model.Page[model.Payment]](ctx, a, gateway.PaymentsKey(gateway.PaymentFilter{Limit: model.MaxLimit}))
		return err
	})
	g.Go(func() (err error) {
		tickets, err = fetch[model.Page[model.MaintenanceTicket]](ctx, a, gateway.TicketsKey(gateway.TicketFilter{Limit: model.MaxLimit}))
		return err
	})
	if err := g.Wait(); err != nil {
		return aggregate.DerivedStats{}, err
	}
	return aggregate.ComputeDashboard(aggregate.Inputs{
		Properties:  properties.Items,
		Tenants:     tenants.Items,
		Payments:    payments.Items,
		Tickets:     tickets.Items,
		Remote:      &remote,
		Now:         now,
		LeaseWindow: leaseWindow,
	}), nil
}
