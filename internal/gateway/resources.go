package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/transport"
)

type PropertyFilter struct {
	Page   int
	Limit  int
	Search string
}

type TenantFilter struct {
	Page       int
	Limit      int
	PropertyID string
}

type PaymentFilter struct {
	Page     int
	Limit    int
	Status   model.PaymentStatus
	TenantID string
}

type TicketFilter struct {
	Page       int
	Limit      int
	Status     model.TicketStatus
	Priority   model.TicketPriority
	PropertyID string
}

func validatePropertyPatch(pp model.PropertyPatch) error {
	if pp.Type != nil && !pp.Type.Valid() {
		return transport.Validationf("unknown property type %q", *pp.Type)
	}
	if pp.Status != nil && !pp.Status.Valid() {
		return transport.Validationf("unknown property status %q", *pp.Status)
	}
	if pp.Name != nil && strings.TrimSpace(*pp.Name) == "" {
		return transport.Validationf("property name cannot be blank")
	}
	return nil
}

func validateTicketPatch(tp model.TicketPatch) error {
	if tp.Status != nil && !tp.Status.Valid() {
		return transport.Validationf("unknown ticket status %q", *tp.Status)
	}
	if tp.Priority != nil && !tp.Priority.Valid() {
		return transport.Validationf("unknown ticket priority %q", *tp.Priority)
	}
	return nil
}

func required(fields ...[2]string) error {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return transport.Validationf("%s is required", f[0])
		}
	}
	return nil
}

func (g *Gateway) ListProperties(ctx context.Context, f PropertyFilter) (model.Page[model.Property], error) {
	return listPage[model.Property](ctx, g, "properties", f.Page, f.Limit, transport.Query{
		"search": optional(f.Search),
	})
}

func (g *Gateway) GetProperty(ctx context.Context, id string) (model.Property, error) {
	id, err := requireID("property", id)
	if err != nil {
		return model.Property{}, err
	}
	return send[model.Property](ctx, g, http.MethodGet, "properties/"+id, nil)
}

func (g *Gateway) CreateProperty(ctx context.Context, in model.PropertyInput) (model.Property, error) {
	err := required(
		[2]string{"name", in.Name},
		[2]string{"address", in.Address},
		[2]string{"city", in.City},
		[2]string{"state", in.State},
		[2]string{"zipCode", in.ZipCode},
		[2]string{"type", string(in.Type)},
	)
	if err != nil {
		return model.Property{}, err
	}
	if !in.Type.Valid() {
		return model.Property{}, transport.Validationf("unknown property type %q", in.Type)
	}
	if in.Status != "" && !in.Status.Valid() {
		return model.Property{}, transport.Validationf("unknown property status %q", in.Status)
	}
	if in.Units < 0 {
		return model.Property{}, transport.Validationf("units cannot be negative")
	}
	return send[model.Property](ctx, g, http.MethodPost, "properties", in)
}

func (g *Gateway) UpdateProperty(ctx context.Context, id string, patch model.PropertyPatch) (model.Property, error) {
	id, err := requireID("property", id)
	if err != nil {
		return model.Property{}, err
	}
	if err := validatePropertyPatch(patch); err != nil {
		return model.Property{}, err
	}
	return send[model.Property](ctx, g, http.MethodPut, "properties/"+id, patch)
}

func (g *Gateway) DeleteProperty(ctx context.Context, id string) error {
	id, err := requireID("property", id)
	if err != nil {
		return err
	}
	_, err = g.client.Send(ctx, http.MethodDelete, "properties/"+id, nil, nil)
	return err
}

// ListPropertyUnits is unpaginated on the server; the result is one page
// holding every unit.
func (g *Gateway) ListPropertyUnits(ctx context.Context, propertyID string) (model.Page[model.Unit], error) {
	id, err := requireID("property", propertyID)
	if err != nil {
		return model.Page[model.Unit]{}, err
	}
	env, err := g.client.Send(ctx, http.MethodGet, "properties/"+id+"/units", nil, nil)
	if err != nil {
		return model.Page[model.Unit]{}, err
	}
	units, err := decode[[]model.Unit](env)
	if err != nil {
		return model.Page[model.Unit]{}, err
	}
	return model.NewPage(units, 1, max(len(units), 1), len(units)), nil
}

func (g *Gateway) ListTenants(ctx context.Context, f TenantFilter) (model.Page[model.Tenant], error) {
	return listPage[model.Tenant](ctx, g, "tenants", f.Page, f.Limit, transport.Query{
		"propertyId": optional(f.PropertyID),
	})
}

func (g *Gateway) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	id, err := requireID("tenant", id)
	if err != nil {
		return model.Tenant{}, err
	}
	return send[model.Tenant](ctx, g, http.MethodGet, "tenants/"+id, nil)
}

func (g *Gateway) CreateTenant(ctx context.Context, in model.TenantInput) (model.Tenant, error) {
	err := required(
		[2]string{"name", in.Name},
		[2]string{"email", in.Email},
		[2]string{"unitId", in.UnitID},
	)
	if err != nil {
		return model.Tenant{}, err
	}
	in.Email = strings.TrimSpace(in.Email)
	if !ValidEmail(in.Email) {
		return model.Tenant{}, transport.Validationf("a valid email is required")
	}
	if !in.LeaseStart.IsZero() && !in.LeaseEnd.IsZero() && in.LeaseEnd.Before(in.LeaseStart) {
		return model.Tenant{}, transport.Validationf("lease cannot end before it starts")
	}
	return send[model.Tenant](ctx, g, http.MethodPost, "tenants", in)
}

func (g *Gateway) ListPayments(ctx context.Context, f PaymentFilter) (model.Page[model.Payment], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.Page[model.Payment]{}, transport.Validationf("unknown payment status %q", f.Status)
	}
	return listPage[model.Payment](ctx, g, "payments", f.Page, f.Limit, transport.Query{
		"status":   optional(string(f.Status)),
		"tenantId": optional(f.TenantID),
	})
}

func (g *Gateway) CreatePayment(ctx context.Context, in model.PaymentInput) (model.Payment, error) {
	if err := required([2]string{"tenantId", in.TenantID}); err != nil {
		return model.Payment{}, err
	}
	if in.Amount <= 0 {
		return model.Payment{}, transport.Validationf("amount must be greater than zero")
	}
	if in.Method != "" && !in.Method.Valid() {
		return model.Payment{}, transport.Validationf("unknown payment method %q", in.Method)
	}
	return send[model.Payment](ctx, g, http.MethodPost, "payments", in)
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, in model.PaymentIntentRequest) (model.PaymentIntent, error) {
	if err := required([2]string{"tenantId", in.TenantID}); err != nil {
		return model.PaymentIntent{}, err
	}
	if in.Amount <= 0 {
		return model.PaymentIntent{}, transport.Validationf("amount must be greater than zero")
	}
	return send[model.PaymentIntent](ctx, g, http.MethodPost, "payments/create-intent", in)
}

func (g *Gateway) ListTickets(ctx context.Context, f TicketFilter) (model.Page[model.MaintenanceTicket], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.Page[model.MaintenanceTicket]{}, transport.Validationf("unknown ticket status %q", f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return model.Page[model.MaintenanceTicket]{}, transport.Validationf("unknown ticket priority %q", f.Priority)
	}
	return listPage[model.MaintenanceTicket](ctx, g, "maintenance", f.Page, f.Limit, transport.Query{
		"status":     optional(string(f.Status)),
		"priority":   optional(string(f.Priority)),
		"propertyId": optional(f.PropertyID),
	})
}

func (g *Gateway) GetTicket(ctx context.Context, id string) (model.MaintenanceTicket, error) {
	id, err := requireID("ticket", id)
	if err != nil {
		return model.MaintenanceTicket{}, err
	}
	return send[model.MaintenanceTicket](ctx, g, http.MethodGet, "maintenance/"+id, nil)
}

func (g *Gateway) CreateTicket(ctx context.Context, in model.TicketInput) (model.MaintenanceTicket, error) {
	err := required(
		[2]string{"title", in.Title},
		[2]string{"description", in.Description},
		[2]string{"category", string(in.Category)},
	)
	if err != nil {
		return model.MaintenanceTicket{}, err
	}
	if !in.Category.Valid() {
		return model.MaintenanceTicket{}, transport.Validationf("unknown ticket category %q", in.Category)
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return model.MaintenanceTicket{}, transport.Validationf("unknown ticket priority %q", in.Priority)
	}
	return send[model.MaintenanceTicket](ctx, g, http.MethodPost, "maintenance", in)
}

func (g *Gateway) UpdateTicket(ctx context.Context, id string, patch model.TicketPatch) (model.MaintenanceTicket, error) {
	id, err := requireID("ticket", id)
	if err != nil {
		return model.MaintenanceTicket{}, err
	}
	if err := validateTicketPatch(patch); err != nil {
		return model.MaintenanceTicket{}, err
	}
	return send[model.MaintenanceTicket](ctx, g, http.MethodPut, "maintenance/"+id, patch)
}

func (g *Gateway) AssignTicket(ctx context.Context, id, assignee string) (model.MaintenanceTicket, error) {
	id, err := requireID("ticket", id)
	if err != nil {
		return model.MaintenanceTicket{}, err
	}
	if err := required([2]string{"assignedTo", assignee}); err != nil {
		return model.MaintenanceTicket{}, err
	}
	body := map[string]string{"assignedTo": strings.TrimSpace(assignee)}
	return send[model.MaintenanceTicket](ctx, g, http.MethodPost, "maintenance/"+id+"/assign", body)
}

func (g *Gateway) ListNotifications(ctx context.Context, unreadOnly bool) (model.Page[model.Notification], error) {
	query := transport.Query{}
	if unreadOnly {
		query["unread"] = true
	}
	env, err := g.client.Send(ctx, http.MethodGet, "notifications", nil, query)
	if err != nil {
		return model.Page[model.Notification]{}, err
	}
	items, err := decode[[]model.Notification](env)
	if err != nil {
		return model.Page[model.Notification]{}, err
	}
	limit := env.Limit
	if limit <= 0 {
		limit = max(len(items), 1)
	}
	return model.NewPage(items, max(env.Page, 1), limit, env.Total), nil
}

func (g *Gateway) MarkNotificationRead(ctx context.Context, id string) (model.Notification, error) {
	id, err := requireID("notification", id)
	if err != nil {
		return model.Notification{}, err
	}
	return send[model.Notification](ctx, g, http.MethodPut, "notifications/"+id+"/read", nil)
}

// MarkAllNotificationsRead returns how many notifications changed.
func (g *Gateway) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	env, err := g.client.Send(ctx, http.MethodPut, "notifications/read-all", nil, nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Updated int `json:"updated"`
	}
	if err := transport.DecodeData(env, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (g *Gateway) GetDashboardStats(ctx context.Context) (model.DashboardStats, error) {
	return send[model.DashboardStats](ctx, g, http.MethodGet, "dashboard/stats", nil)
}
