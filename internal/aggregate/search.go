package aggregate

import (
	"strings"

	"github.com/propmanage/propsync/internal/model"
)

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matchesChoice[S ~string](value S, choice string) bool {
	choice = strings.TrimSpace(choice)
	return choice == "" || strings.EqualFold(choice, AllFilter) || string(value) == choice
}

// PropertyMatches searches name, address and city and filters by type.
func PropertyMatches(search, propertyType string) func(model.Property) bool {
	return func(p model.Property) bool {
		textMatch := containsFold(p.Name, search) || containsFold(p.Address, search) || containsFold(p.City, search)
		return textMatch && matchesChoice(p.Type, propertyType)
	}
}

// TenantMatches searches the tenant's name and email and filters by lease status.
func TenantMatches(search, leaseStatus string) func(model.Tenant) bool {
	return func(t model.Tenant) bool {
		textMatch := containsFold(t.User.Name, search) || containsFold(t.User.Email, search)
		return textMatch && matchesChoice(t.LeaseStatus, leaseStatus)
	}
}

// PaymentMatches searches the description and filters by status.
func PaymentMatches(search, status string) func(model.Payment) bool {
	return func(p model.Payment) bool {
		return containsFold(p.Description, search) && matchesChoice(p.Status, status)
	}
}

// TicketMatches searches title and description and filters by status and priority.
func TicketMatches(search, status, priority string) func(model.MaintenanceTicket) bool {
	return func(t model.MaintenanceTicket) bool {
		textMatch := containsFold(t.Title, search) || containsFold(t.Description, search)
		return textMatch && matchesChoice(t.Status, status) && matchesChoice(t.Priority, priority)
	}
}
