package model

import "time"

type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleManager UserRole = "MANAGER"
	RoleTenant  UserRole = "TENANT"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTenant:
		return true
	}
	return false
}

type PropertyType string

const (
	PropertyApartment  PropertyType = "APARTMENT"
	PropertyHouse      PropertyType = "HOUSE"
	PropertyCondo      PropertyType = "CONDO"
	PropertyTownhouse  PropertyType = "TOWNHOUSE"
	PropertyCommercial PropertyType = "COMMERCIAL"
)

func (t PropertyType) Valid() bool {
	switch t {
	case PropertyApartment, PropertyHouse, PropertyCondo, PropertyTownhouse, PropertyCommercial:
		return true
	}
	return false
}

type PropertyStatus string

const (
	PropertyActive      PropertyStatus = "ACTIVE"
	PropertyInactive    PropertyStatus = "INACTIVE"
	PropertyMaintenance PropertyStatus = "MAINTENANCE"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyActive, PropertyInactive, PropertyMaintenance:
		return true
	}
	return false
}

type UnitStatus string

const (
	UnitVacant      UnitStatus = "VACANT"
	UnitOccupied    UnitStatus = "OCCUPIED"
	UnitMaintenance UnitStatus = "MAINTENANCE"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitVacant, UnitOccupied, UnitMaintenance:
		return true
	}
	return false
}

type LeaseStatus string

const (
	LeaseActive     LeaseStatus = "ACTIVE"
	LeasePending    LeaseStatus = "PENDING"
	LeaseExpired    LeaseStatus = "EXPIRED"
	LeaseTerminated LeaseStatus = "TERMINATED"
)

func (s LeaseStatus) Valid() bool {
	switch s {
	case LeaseActive, LeasePending, LeaseExpired, LeaseTerminated:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCheck        PaymentMethod = "CHECK"
	MethodCash         PaymentMethod = "CASH"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodCheck, MethodCash:
		return true
	}
	return false
}

type TicketPriority string

const (
	PriorityLow    TicketPriority = "LOW"
	PriorityMedium TicketPriority = "MEDIUM"
	PriorityHigh   TicketPriority = "HIGH"
	PriorityUrgent TicketPriority = "URGENT"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "OPEN"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketWaiting    TicketStatus = "WAITING"
	TicketResolved   TicketStatus = "RESOLVED"
	TicketClosed     TicketStatus = "CLOSED"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketWaiting, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// Terminal reports whether no further work is expected on the ticket.
func (s TicketStatus) Terminal() bool {
	return s == TicketResolved || s == TicketClosed
}

type TicketCategory string

const (
	CategoryPlumbing   TicketCategory = "PLUMBING"
	CategoryElectrical TicketCategory = "ELECTRICAL"
	CategoryHVAC       TicketCategory = "HVAC"
	CategoryAppliance  TicketCategory = "APPLIANCE"
	CategoryStructural TicketCategory = "STRUCTURAL"
	CategoryPest       TicketCategory = "PEST"
	CategoryGeneral    TicketCategory = "GENERAL"
	CategoryOther      TicketCategory = "OTHER"
)

func (c TicketCategory) Valid() bool {
	switch c {
	case CategoryPlumbing, CategoryElectrical, CategoryHVAC, CategoryAppliance,
		CategoryStructural, CategoryPest, CategoryGeneral, CategoryOther:
		return true
	}
	return false
}

type NotificationType string

const (
	NotifyPaymentDue        NotificationType = "PAYMENT_DUE"
	NotifyPaymentReceived   NotificationType = "PAYMENT_RECEIVED"
	NotifyPaymentLate       NotificationType = "PAYMENT_LATE"
	NotifyMaintenanceUpdate NotificationType = "MAINTENANCE_UPDATE"
	NotifyLeaseExpiring     NotificationType = "LEASE_EXPIRING"
	NotifyAnnouncement      NotificationType = "ANNOUNCEMENT"
	NotifySystem            NotificationType = "SYSTEM"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotifyPaymentDue, NotifyPaymentReceived, NotifyPaymentLate, NotifyMaintenanceUpdate,
		NotifyLeaseExpiring, NotifyAnnouncement, NotifySystem:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      UserRole  `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type AuthResponse struct {
	User   User       `json:"user"`
	Tokens AuthTokens `json:"tokens"`
}

type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     UserRole `json:"role"`
	Phone    string   `json:"phone,omitempty"`
}

type Property struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Address        string         `json:"address"`
	City           string         `json:"city"`
	State          string         `json:"state"`
	ZipCode        string         `json:"zipCode"`
	Type           PropertyType   `json:"type"`
	Status         PropertyStatus `json:"status"`
	Units          int            `json:"units"`
	OccupiedUnits  int            `json:"occupiedUnits"`
	MonthlyRevenue float64        `json:"monthlyRevenue"`
	ImageURL       string         `json:"imageUrl,omitempty"`
	Description    string         `json:"description,omitempty"`
	Amenities      []string       `json:"amenities"`
	ManagerID      string         `json:"managerId"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type Unit struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"propertyId"`
	UnitNumber string     `json:"unitNumber"`
	Floor      int        `json:"floor"`
	Bedrooms   int        `json:"bedrooms"`
	Bathrooms  float64    `json:"bathrooms"`
	Sqft       int        `json:"sqft"`
	Rent       float64    `json:"rent"`
	Status     UnitStatus `json:"status"`
	TenantID   string     `json:"tenantId,omitempty"`
	LeaseID    string     `json:"leaseId,omitempty"`
}

type Tenant struct {
	ID               string      `json:"id"`
	UserID           string      `json:"userId"`
	User             User        `json:"user"`
	UnitID           string      `json:"unitId"`
	PropertyID       string      `json:"propertyId"`
	LeaseStart       time.Time   `json:"leaseStart"`
	LeaseEnd         time.Time   `json:"leaseEnd"`
	LeaseStatus      LeaseStatus `json:"leaseStatus"`
	MonthlyRent      float64     `json:"monthlyRent"`
	SecurityDeposit  float64     `json:"securityDeposit"`
	EmergencyContact string      `json:"emergencyContact,omitempty"`
	MoveInDate       time.Time   `json:"moveInDate"`
}

type Lease struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenantId"`
	UnitID          string      `json:"unitId"`
	PropertyID      string      `json:"propertyId"`
	StartDate       time.Time   `json:"startDate"`
	EndDate         time.Time   `json:"endDate"`
	MonthlyRent     float64     `json:"monthlyRent"`
	SecurityDeposit float64     `json:"securityDeposit"`
	Status          LeaseStatus `json:"status"`
	Terms           string      `json:"terms"`
	DocumentURL     string      `json:"documentUrl,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

type Payment struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenantId"`
	PropertyID      string        `json:"propertyId"`
	UnitID          string        `json:"unitId"`
	Amount          float64       `json:"amount"`
	Status          PaymentStatus `json:"status"`
	Method          PaymentMethod `json:"method"`
	Description     string        `json:"description"`
	DueDate         time.Time     `json:"dueDate"`
	PaidDate        *time.Time    `json:"paidDate,omitempty"`
	StripePaymentID string        `json:"stripePaymentId,omitempty"`
	ReceiptURL      string        `json:"receiptUrl,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type PaymentIntent struct {
	ClientSecret string  `json:"clientSecret"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

type PaymentIntentRequest struct {
	Amount      float64 `json:"amount"`
	TenantID    string  `json:"tenantId"`
	Description string  `json:"description"`
}

type MaintenanceTicket struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	PropertyID    string         `json:"propertyId"`
	UnitID        string         `json:"unitId"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Category      TicketCategory `json:"category"`
	Priority      TicketPriority `json:"priority"`
	Status        TicketStatus   `json:"status"`
	AssignedTo    string         `json:"assignedTo,omitempty"`
	Images        []string       `json:"images"`
	Notes         []TicketNote   `json:"notes"`
	EstimatedCost *float64       `json:"estimatedCost,omitempty"`
	ActualCost    *float64       `json:"actualCost,omitempty"`
	ScheduledDate *time.Time     `json:"scheduledDate,omitempty"`
	ResolvedDate  *time.Time     `json:"resolvedDate,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type TicketNote struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticketId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	ActionURL string           `json:"actionUrl,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// MonthlyRevenue is one revenueByMonth bucket as labelled by the server.
type MonthlyRevenue struct {
	Month    string  `json:"month"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
}

type PropertyOccupancy struct {
	Property string `json:"property"`
	Rate     int    `json:"rate"`
}

type DashboardStats struct {
	TotalProperties     int                 `json:"totalProperties"`
	TotalUnits          int                 `json:"totalUnits"`
	OccupancyRate       int                 `json:"occupancyRate"`
	TotalRevenue        float64             `json:"totalRevenue"`
	PendingPayments     int                 `json:"pendingPayments"`
	OpenTickets         int                 `json:"openTickets"`
	ExpiringLeases      int                 `json:"expiringLeases"`
	RecentPayments      []Payment           `json:"recentPayments"`
	RecentTickets       []MaintenanceTicket `json:"recentTickets"`
	RevenueByMonth      []MonthlyRevenue    `json:"revenueByMonth"`
	OccupancyByProperty []PropertyOccupancy `json:"occupancyByProperty"`
}
