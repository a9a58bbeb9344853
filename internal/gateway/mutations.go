package gateway

import (
	"context"
	"slices"

	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/syncstore"
)

// patchCached returns a predictor that rewrites the item with the given id
// in every cached page or entity of resource. Values are copied; current is
// never modified.
func patchCached[T any](resource, id string, idOf func(T) string, apply func(T) T) func(syncstore.QueryKey, any) (any, bool) {
	return func(key syncstore.QueryKey, current any) (any, bool) {
		if key.Resource != resource {
			return nil, false
		}
		switch v := current.(type) {
		case model.Page[T]:
			i := slices.IndexFunc(v.Items, func(item T) bool { return idOf(item) == id })
			if i < 0 {
				return nil, false
			}
			next := v
			next.Items = slices.Clone(v.Items)
			next.Items[i] = apply(v.Items[i])
			return next, true
		case T:
			if idOf(v) != id {
				return nil, false
			}
			return apply(v), true
		}
		return nil, false
	}
}

// serverWins replaces the predicted item with the server's copy.
func serverWins[T any](resource, id string, idOf func(T) string) func(syncstore.QueryKey, any, any) (any, bool) {
	return func(key syncstore.QueryKey, predicted, result any) (any, bool) {
		server, ok := result.(T)
		if !ok {
			return nil, false
		}
		return patchCached(resource, id, idOf, func(T) T { return server })(key, predicted)
	}
}

func propertyID(p model.Property) string { return p.ID }
func ticketID(t model.MaintenanceTicket) string { return t.ID }
func notificationID(n model.Notification) string { return n.ID }

func (g *Gateway) UpdatePropertyMutation(id string, patch model.PropertyPatch) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "property.update",
		Target:      id,
		Invalidates: []string{ResourceProperties},
		Predict:     patchCached(ResourceProperties, id, propertyID, patch.Apply),
		Reconcile:   serverWins(ResourceProperties, id, propertyID),
		Do: func(ctx context.Context) (any, error) {
			return g.UpdateProperty(ctx, id, patch)
		},
	}
}

func (g *Gateway) UpdateTicketMutation(id string, patch model.TicketPatch) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "ticket.update",
		Target:      id,
		Invalidates: []string{ResourceTickets},
		Predict:     patchCached(ResourceTickets, id, ticketID, patch.Apply),
		Reconcile:   serverWins(ResourceTickets, id, ticketID),
		Do: func(ctx context.Context) (any, error) {
			return g.UpdateTicket(ctx, id, patch)
		},
	}
}

func (g *Gateway) AssignTicketMutation(id, assignee string) syncstore.Mutation {
	patch := model.TicketPatch{AssignedTo: &assignee}
	return syncstore.Mutation{
		Name:        "ticket.assign",
		Target:      id,
		Invalidates: []string{ResourceTickets},
		Predict:     patchCached(ResourceTickets, id, ticketID, patch.Apply),
		Reconcile:   serverWins(ResourceTickets, id, ticketID),
		Do: func(ctx context.Context) (any, error) {
			return g.AssignTicket(ctx, id, assignee)
		},
	}
}

// markRead flips the matching notifications to read. An unread-only page
// drops them instead.
func markRead(match func(model.Notification) bool) func(syncstore.QueryKey, any) (any, bool) {
	return func(key syncstore.QueryKey, current any) (any, bool) {
		page, ok := current.(model.Page[model.Notification])
		if key.Resource != ResourceNotifications || !ok {
			return nil, false
		}
		unreadOnly := key.Filter("unread") == "true"
		next := page
		next.Items = make([]model.Notification, 0, len(page.Items))
		changed := false
		for _, n := range page.Items {
			if n.Read || !match(n) {
				next.Items = append(next.Items, n)
				continue
			}
			changed = true
			if unreadOnly {
				next.Total--
				continue
			}
			n.Read = true
			next.Items = append(next.Items, n)
		}
		if !changed {
			return nil, false
		}
		next.TotalPages = model.TotalPages(next.Total, next.Limit)
		return next, true
	}
}

func (g *Gateway) MarkNotificationReadMutation(id string) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "notification.read",
		Target:      id,
		Invalidates: []string{ResourceNotifications},
		Predict:     markRead(func(n model.Notification) bool { return n.ID == id }),
		Reconcile: func(key syncstore.QueryKey, predicted, result any) (any, bool) {
			if key.Filter("unread") == "true" {
				return nil, false
			}
			return serverWins(ResourceNotifications, id, notificationID)(key, predicted, result)
		},
		Do: func(ctx context.Context) (any, error) {
			return g.MarkNotificationRead(ctx, id)
		},
	}
}

func (g *Gateway) MarkAllNotificationsReadMutation() syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "notification.read-all",
		Invalidates: []string{ResourceNotifications},
		Predict:     markRead(func(model.Notification) bool { return true }),
		Do: func(ctx context.Context) (any, error) {
			return g.MarkAllNotificationsRead(ctx)
		},
	}
}

// The writes below create or remove records; their results are only known
// once the server answers, so they carry no prediction.

func (g *Gateway) CreatePropertyMutation(in model.PropertyInput) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "property.create",
		Invalidates: []string{ResourceProperties},
		Do: func(ctx context.Context) (any, error) {
			return g.CreateProperty(ctx, in)
		},
	}
}

func (g *Gateway) DeletePropertyMutation(id string) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "property.delete",
		Target:      id,
		Invalidates: []string{ResourceProperties, ResourceUnits},
		Do: func(ctx context.Context) (any, error) {
			return nil, g.DeleteProperty(ctx, id)
		},
	}
}

func (g *Gateway) CreateTenantMutation(in model.TenantInput) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "tenant.create",
		Invalidates: []string{ResourceTenants, ResourceUnits, ResourceProperties},
		Do: func(ctx context.Context) (any, error) {
			return g.CreateTenant(ctx, in)
		},
	}
}

func (g *Gateway) CreatePaymentMutation(in model.PaymentInput) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "payment.create",
		Target:      in.TenantID,
		Invalidates: []string{ResourcePayments},
		Do: func(ctx context.Context) (any, error) {
			return g.CreatePayment(ctx, in)
		},
	}
}

func (g *Gateway) CreateTicketMutation(in model.TicketInput) syncstore.Mutation {
	return syncstore.Mutation{
		Name:        "ticket.create",
		Invalidates: []string{ResourceTickets},
		Do: func(ctx context.Context) (any, error) {
			return g.CreateTicket(ctx, in)
		},
	}
}
