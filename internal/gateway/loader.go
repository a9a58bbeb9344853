package gateway

import (
	"context"
	"strconv"

	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/syncstore"
	"github.com/propmanage/propsync/internal/transport"
)

// keyPage applies the request defaults so that equal requests share a key.
// Negative values are kept so Load reports them.
func keyPage(page, limit int) (int, int) {
	if page == 0 {
		page = model.DefaultPage
	}
	if limit == 0 {
		limit = model.DefaultLimit
	}
	if limit > model.MaxLimit {
		limit = model.MaxLimit
	}
	return page, limit
}

func PropertiesKey(f PropertyFilter) syncstore.QueryKey {
	page, limit := keyPage(f.Page, f.Limit)
	return syncstore.ListKey(ResourceProperties, page, limit, map[string]string{"search": f.Search})
}

func PropertyKey(id string) syncstore.QueryKey {
	return syncstore.EntityKey(ResourceProperties, id)
}

func UnitsKey(propertyID string) syncstore.QueryKey {
	return syncstore.ListKey(ResourceUnits, 0, 0, map[string]string{"propertyId": propertyID})
}

func TenantsKey(f TenantFilter) syncstore.QueryKey {
	page, limit := keyPage(f.Page, f.Limit)
	return syncstore.ListKey(ResourceTenants, page, limit, map[string]string{"propertyId": f.PropertyID})
}

func TenantKey(id string) syncstore.QueryKey {
	return syncstore.EntityKey(ResourceTenants, id)
}

func PaymentsKey(f PaymentFilter) syncstore.QueryKey {
	page, limit := keyPage(f.Page, f.Limit)
	return syncstore.ListKey(ResourcePayments, page, limit, map[string]string{
		"status":   string(f.Status),
		"tenantId": f.TenantID,
	})
}

func TicketsKey(f TicketFilter) syncstore.QueryKey {
	page, limit := keyPage(f.Page, f.Limit)
	return syncstore.ListKey(ResourceTickets, page, limit, map[string]string{
		"status":     string(f.Status),
		"priority":   string(f.Priority),
		"propertyId": f.PropertyID,
	})
}

func TicketKey(id string) syncstore.QueryKey {
	return syncstore.EntityKey(ResourceTickets, id)
}

func NotificationsKey(unreadOnly bool) syncstore.QueryKey {
	filters := map[string]string{}
	if unreadOnly {
		filters["unread"] = "true"
	}
	return syncstore.ListKey(ResourceNotifications, 0, 0, filters)
}

func DashboardKey() syncstore.QueryKey {
	return syncstore.SingletonKey(syncstore.DashboardResource)
}

// Load resolves a cache key to its remote read.
func (g *Gateway) Load(ctx context.Context, key syncstore.QueryKey) (any, error) {
	switch key.Kind {
	case syncstore.KindList:
		return g.loadList(ctx, key)
	case syncstore.KindEntity:
		switch key.Resource {
		case ResourceProperties:
			return g.GetProperty(ctx, key.ID)
		case ResourceTenants:
			return g.GetTenant(ctx, key.ID)
		case ResourceTickets:
			return g.GetTicket(ctx, key.ID)
		}
	case syncstore.KindSingleton:
		if key.Resource == syncstore.DashboardResource {
			return g.GetDashboardStats(ctx)
		}
	}
	return nil, transport.Validationf("no remote read for %s", key)
}

func (g *Gateway) loadList(ctx context.Context, key syncstore.QueryKey) (any, error) {
	switch key.Resource {
	case ResourceProperties:
		return g.ListProperties(ctx, PropertyFilter{Page: key.Page, Limit: key.Limit, Search: key.Filter("search")})
	case ResourceUnits:
		return g.ListPropertyUnits(ctx, key.Filter("propertyId"))
	case ResourceTenants:
		return g.ListTenants(ctx, TenantFilter{Page: key.Page, Limit: key.Limit, PropertyID: key.Filter("propertyId")})
	case ResourcePayments:
		return g.ListPayments(ctx, PaymentFilter{
			Page:     key.Page,
			Limit:    key.Limit,
			Status:   model.PaymentStatus(key.Filter("status")),
			TenantID: key.Filter("tenantId"),
		})
	case ResourceTickets:
		return g.ListTickets(ctx, TicketFilter{
			Page:       key.Page,
			Limit:      key.Limit,
			Status:     model.TicketStatus(key.Filter("status")),
			Priority:   model.TicketPriority(key.Filter("priority")),
			PropertyID: key.Filter("propertyId"),
		})
	case ResourceNotifications:
		unread, _ := strconv.ParseBool(key.Filter("unread"))
		return g.ListNotifications(ctx, unread)
	}
	return nil, transport.Validationf("no remote read for %s", key)
}
