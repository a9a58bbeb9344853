package model

import "time"

// Resource names shared by change events and client-side cache keys.
const (
	ResourceAuth          = "auth"
	ResourceProperties    = "properties"
	ResourceUnits         = "units"
	ResourceTenants       = "tenants"
	ResourcePayments      = "payments"
	ResourceTickets       = "tickets"
	ResourceNotifications = "notifications"
	ResourceDashboard     = "dashboard"
)

type ChangeAction string

const (
	ActionCreated ChangeAction = "created"
	ActionUpdated ChangeAction = "updated"
	ActionDeleted ChangeAction = "deleted"
)

// ChangeEvent announces that a record of Resource changed on the server.
type ChangeEvent struct {
	Resource string       `json:"resource"`
	Action   ChangeAction `json:"action"`
	ID       string       `json:"id,omitempty"`
	At       time.Time    `json:"at"`
}
