package dataset

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/propmanage/propsync/internal/model"
)

// Demo credentials for the seeded administrator.
const (
	DemoEmail    = "alex.morgan@propmanage.dev"
	DemoPassword = "propmanage-demo"
)

type seedUnit struct {
	id       string
	number   string
	floor    int
	bedrooms int
	baths    float64
	sqft     int
	rent     float64
}

func (r *Repository) seed() error {
	now := r.now().UTC()
	day := 24 * time.Hour
	ago := func(d time.Duration) time.Time { return now.Add(-d) }

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), r.cost)
	if err != nil {
		return err
	}
	s := r.state
	addUser := func(id, name, email string, role model.UserRole, passwordHash string) {
		s.Users[id] = UserRecord{
			User: model.User{
				ID:        id,
				Email:     email,
				Name:      name,
				Role:      role,
				CreatedAt: ago(400 * day),
				UpdatedAt: ago(30 * day),
			},
			PasswordHash: passwordHash,
		}
	}
	addUser("usr_001", "Alex Morgan", DemoEmail, model.RoleAdmin, string(hash))
	addUser("usr_002", "Jordan Blake", "jordan.blake@propmanage.dev", model.RoleManager, string(hash))
	addUser("usr_101", "Maria Santos", "maria.santos@example.com", model.RoleTenant, "")
	addUser("usr_102", "Devon Price", "devon.price@example.com", model.RoleTenant, "")
	addUser("usr_103", "Priya Natarajan", "priya.n@example.com", model.RoleTenant, "")
	addUser("usr_104", "Sam Okafor", "sam.okafor@example.com", model.RoleTenant, "")

	addProperty := func(p model.Property, units []seedUnit) {
		p.Status = model.PropertyActive
		p.Units = max(p.Units, len(units))
		p.CreatedAt = ago(365 * day)
		p.UpdatedAt = ago(7 * day)
		s.Properties[p.ID] = p
		for _, u := range units {
			s.Units[u.id] = model.Unit{
				ID:         u.id,
				PropertyID: p.ID,
				UnitNumber: u.number,
				Floor:      u.floor,
				Bedrooms:   u.bedrooms,
				Bathrooms:  u.baths,
				Sqft:       u.sqft,
				Rent:       u.rent,
				Status:     model.UnitVacant,
			}
		}
	}

	riverside := []seedUnit{
		{"unit_001", "101", 1, 1, 1, 650, 1150},
		{"unit_002", "102", 1, 2, 1, 820, 1350},
		{"unit_003", "103", 1, 2, 1.5, 860, 1400},
		{"unit_004", "104", 1, 1, 1, 650, 1175},
	}
	for i := len(riverside); i < 24; i++ {
		floor := i/6 + 1
		riverside = append(riverside, seedUnit{
			id:       fmt.Sprintf("unit_%03d", i+1),
			number:   fmt.Sprintf("%d%02d", floor, i%6+1),
			floor:    floor,
			bedrooms: 1 + i%2,
			baths:    1,
			sqft:     650 + 170*(i%2),
			rent:     1150 + 200*float64(i%2),
		})
	}
	addProperty(model.Property{
		ID:          "prop_001",
		Name:        "Riverside Apartments",
		Address:     "142 River Rd",
		City:        "Youngstown",
		State:       "OH",
		ZipCode:     "44503",
		Type:        model.PropertyApartment,
		Description: "Renovated mid-rise overlooking the Mahoning River.",
		Amenities:   []string{"Laundry", "Parking", "Fitness Center"},
		ManagerID:   "usr_001",
	}, riverside)
	addProperty(model.Property{
		ID:          "prop_002",
		Name:        "Maple Court Townhomes",
		Address:     "88 Maple Ct",
		City:        "Boardman",
		State:       "OH",
		ZipCode:     "44512",
		Type:        model.PropertyTownhouse,
		Description: "Two-story townhomes with private garages.",
		Amenities:   []string{"Garage", "Patio"},
		ManagerID:   "usr_002",
	}, []seedUnit{
		{"unit_101", "A", 1, 3, 2.5, 1450, 1895},
		{"unit_102", "B", 1, 3, 2.5, 1450, 1895},
		{"unit_103", "C", 1, 2, 1.5, 1200, 1650},
		{"unit_104", "D", 1, 2, 1.5, 1200, 1650},
	})
	addProperty(model.Property{
		ID:          "prop_003",
		Name:        "Canfield Commons",
		Address:     "310 W Main St",
		City:        "Canfield",
		State:       "OH",
		ZipCode:     "44406",
		Type:        model.PropertyCommercial,
		Description: "Street-level retail with office suites above.",
		Amenities:   []string{},
		ManagerID:   "usr_001",
	}, []seedUnit{
		{"unit_201", "1A", 1, 0, 1, 2200, 3200},
		{"unit_202", "2A", 2, 0, 1, 1800, 2600},
	})

	addTenant := func(id, userID, unitID string, start, end time.Time, deposit float64) {
		unit := s.Units[unitID]
		user := s.Users[userID].User
		s.Tenants[id] = model.Tenant{
			ID:               id,
			UserID:           userID,
			User:             user,
			UnitID:           unitID,
			PropertyID:       unit.PropertyID,
			LeaseStart:       start,
			LeaseEnd:         end,
			LeaseStatus:      model.LeaseActive,
			MonthlyRent:      unit.Rent,
			SecurityDeposit:  deposit,
			EmergencyContact: "",
			MoveInDate:       start,
		}
		unit.Status = model.UnitOccupied
		unit.TenantID = id
		s.Units[unitID] = unit
	}
	addTenant("ten_001", "usr_101", "unit_001", ago(300*day), now.Add(65*day), 1150)
	addTenant("ten_002", "usr_102", "unit_002", ago(200*day), now.Add(165*day), 1350)
	addTenant("ten_003", "usr_103", "unit_004", ago(340*day), now.Add(25*day), 1175)
	addTenant("ten_004", "usr_104", "unit_101", ago(90*day), now.Add(275*day), 1895)
	for id := range s.Properties {
		r.refreshPropertyLocked(id)
	}

	addPayment := func(id, tenantID string, status model.PaymentStatus, method model.PaymentMethod, created time.Duration) {
		tenant := s.Tenants[tenantID]
		p := model.Payment{
			ID:          id,
			TenantID:    tenantID,
			PropertyID:  tenant.PropertyID,
			UnitID:      tenant.UnitID,
			Amount:      tenant.MonthlyRent,
			Status:      status,
			Method:      method,
			Description: "Rent Payment",
			DueDate:     ago(created - 2*day),
			CreatedAt:   ago(created),
		}
		if status == model.PaymentCompleted {
			paid := ago(created)
			p.PaidDate = &paid
			p.ReceiptURL = "/receipts/" + id
		}
		s.Payments[id] = p
	}
	addPayment("pay_001", "ten_001", model.PaymentCompleted, model.MethodCard, 32*day)
	addPayment("pay_002", "ten_002", model.PaymentCompleted, model.MethodBankTransfer, 31*day)
	addPayment("pay_003", "ten_003", model.PaymentCompleted, model.MethodCheck, 30*day)
	addPayment("pay_004", "ten_004", model.PaymentCompleted, model.MethodCard, 29*day)
	addPayment("pay_005", "ten_001", model.PaymentCompleted, model.MethodCard, 2*day)
	addPayment("pay_006", "ten_002", model.PaymentPending, model.MethodBankTransfer, day)
	addPayment("pay_007", "ten_003", model.PaymentFailed, model.MethodCard, 3*day)
	addPayment("pay_008", "ten_004", model.PaymentPending, model.MethodCard, 12*time.Hour)

	addTicket := func(t model.MaintenanceTicket, created time.Duration) {
		tenant := s.Tenants[t.TenantID]
		t.PropertyID = tenant.PropertyID
		t.UnitID = tenant.UnitID
		t.Images = []string{}
		t.Notes = []model.TicketNote{}
		t.CreatedAt = ago(created)
		t.UpdatedAt = ago(created / 2)
		if t.Status.Terminal() {
			resolved := t.UpdatedAt
			t.ResolvedDate = &resolved
		}
		s.Tickets[t.ID] = t
	}
	addTicket(model.MaintenanceTicket{
		ID:          "tkt_001",
		TenantID:    "ten_001",
		Title:       "Kitchen sink leaking",
		Description: "Water pooling under the kitchen sink cabinet.",
		Category:    model.CategoryPlumbing,
		Priority:    model.PriorityUrgent,
		Status:      model.TicketOpen,
	}, 6*time.Hour)
	addTicket(model.MaintenanceTicket{
		ID:          "tkt_002",
		TenantID:    "ten_002",
		Title:       "AC not cooling",
		Description: "Thermostat set to 68 but unit stays at 78.",
		Category:    model.CategoryHVAC,
		Priority:    model.PriorityHigh,
		Status:      model.TicketInProgress,
		AssignedTo:  "Cool Air Services",
	}, 3*day)
	addTicket(model.MaintenanceTicket{
		ID:          "tkt_003",
		TenantID:    "ten_004",
		Title:       "Garage door remote",
		Description: "Remote only works from the driveway.",
		Category:    model.CategoryGeneral,
		Priority:    model.PriorityLow,
		Status:      model.TicketWaiting,
	}, 5*day)
	addTicket(model.MaintenanceTicket{
		ID:          "tkt_004",
		TenantID:    "ten_003",
		Title:       "Hallway light out",
		Description: "Ceiling fixture outside the unit is dark.",
		Category:    model.CategoryElectrical,
		Priority:    model.PriorityMedium,
		Status:      model.TicketResolved,
		AssignedTo:  "usr_001",
	}, 10*day)

	addNotification := func(id, userID string, kind model.NotificationType, title, message, action string, read bool, created time.Duration) {
		s.Notifications[id] = model.Notification{
			ID:        id,
			UserID:    userID,
			Type:      kind,
			Title:     title,
			Message:   message,
			Read:      read,
			ActionURL: action,
			CreatedAt: ago(created),
		}
	}
	addNotification("ntf_001", "usr_001", model.NotifyMaintenanceUpdate, "Urgent maintenance request",
		"Kitchen sink leaking at Riverside Apartments", "/maintenance/tkt_001", false, 6*time.Hour)
	addNotification("ntf_002", "usr_001", model.NotifyPaymentLate, "Payment failed",
		"Rent payment for unit 104 failed", "/payments", false, 3*day)
	addNotification("ntf_003", "usr_001", model.NotifyLeaseExpiring, "Lease expiring",
		"Lease for unit 104 ends within 30 days", "/tenants/ten_003", true, 4*day)
	addNotification("ntf_004", "usr_101", model.NotifyPaymentReceived, "Payment received",
		"Thank you, your rent payment was received", "/payments", false, 2*day)

	revenue := []float64{38200, 39150, 40400, 41050, 42300, 43875}
	expenses := []float64{12100, 11800, 13250, 12600, 12900, 13400}
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := range revenue {
		label := month.AddDate(0, i-len(revenue)+1, 0).Format("Jan")
		s.Revenue = append(s.Revenue, model.MonthlyRevenue{Month: label, Revenue: revenue[i], Expenses: expenses[i]})
	}
	return nil
}
