package model

import "time"

// Request payloads shared by the client and the development server.

type PropertyInput struct {
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	City        string         `json:"city"`
	State       string         `json:"state"`
	ZipCode     string         `json:"zipCode"`
	Type        PropertyType   `json:"type"`
	Status      PropertyStatus `json:"status,omitempty"`
	Units       int            `json:"units"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	Description string         `json:"description,omitempty"`
	Amenities   []string       `json:"amenities,omitempty"`
}

// PropertyPatch carries only the fields being changed.
type PropertyPatch struct {
	Name           *string         `json:"name,omitempty"`
	Address        *string         `json:"address,omitempty"`
	City           *string         `json:"city,omitempty"`
	State          *string         `json:"state,omitempty"`
	ZipCode        *string         `json:"zipCode,omitempty"`
	Type           *PropertyType   `json:"type,omitempty"`
	Status         *PropertyStatus `json:"status,omitempty"`
	MonthlyRevenue *float64        `json:"monthlyRevenue,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Amenities      []string        `json:"amenities,omitempty"`
}

// Apply returns p with the patch's fields overlaid.
func (pp PropertyPatch) Apply(p Property) Property {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Address != nil {
		p.Address = *pp.Address
	}
	if pp.City != nil {
		p.City = *pp.City
	}
	if pp.State != nil {
		p.State = *pp.State
	}
	if pp.ZipCode != nil {
		p.ZipCode = *pp.ZipCode
	}
	if pp.Type != nil {
		p.Type = *pp.Type
	}
	if pp.Status != nil {
		p.Status = *pp.Status
	}
	if pp.MonthlyRevenue != nil {
		p.MonthlyRevenue = *pp.MonthlyRevenue
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Amenities != nil {
		p.Amenities = pp.Amenities
	}
	return p
}

type TenantInput struct {
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	UnitID           string    `json:"unitId"`
	PropertyID       string    `json:"propertyId,omitempty"`
	LeaseStart       time.Time `json:"leaseStart"`
	LeaseEnd         time.Time `json:"leaseEnd"`
	MonthlyRent      float64   `json:"monthlyRent"`
	SecurityDeposit  float64   `json:"securityDeposit"`
	EmergencyContact string    `json:"emergencyContact,omitempty"`
}

type PaymentInput struct {
	TenantID    string        `json:"tenantId"`
	PropertyID  string        `json:"propertyId,omitempty"`
	UnitID      string        `json:"unitId,omitempty"`
	Amount      float64       `json:"amount"`
	Method      PaymentMethod `json:"method,omitempty"`
	Description string        `json:"description,omitempty"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
}

type TicketInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    TicketCategory `json:"category"`
	Priority    TicketPriority `json:"priority,omitempty"`
	PropertyID  string         `json:"propertyId,omitempty"`
	UnitID      string         `json:"unitId,omitempty"`
	TenantID    string         `json:"tenantId,omitempty"`
	Images      []string       `json:"images,omitempty"`
}

// TicketPatch carries only the fields being changed.
type TicketPatch struct {
	Status        *TicketStatus   `json:"status,omitempty"`
	Priority      *TicketPriority `json:"priority,omitempty"`
	AssignedTo    *string         `json:"assignedTo,omitempty"`
	EstimatedCost *float64        `json:"estimatedCost,omitempty"`
	ActualCost    *float64        `json:"actualCost,omitempty"`
	ScheduledDate *time.Time      `json:"scheduledDate,omitempty"`
}

func (tp TicketPatch) Apply(t MaintenanceTicket) MaintenanceTicket {
	if tp.Status != nil {
		t.Status = *tp.Status
	}
	if tp.Priority != nil {
		t.Priority = *tp.Priority
	}
	if tp.AssignedTo != nil {
		t.AssignedTo = *tp.AssignedTo
	}
	if tp.EstimatedCost != nil {
		t.EstimatedCost = tp.EstimatedCost
	}
	if tp.ActualCost != nil {
		t.ActualCost = tp.ActualCost
	}
	if tp.ScheduledDate != nil {
		t.ScheduledDate = tp.ScheduledDate
	}
	return t
}
