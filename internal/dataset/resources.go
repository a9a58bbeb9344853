package dataset

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/propmanage/propsync/internal/aggregate"
	"github.com/propmanage/propsync/internal/model"
)

const (
	unitsPerFloor      = 10
	defaultLeaseLength = 365 * 24 * time.Hour
	recentLimit        = 5
)

func (r *Repository) ListProperties(q Query) model.Page[model.Property] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := newestFirst(r.state.Properties,
		func(p model.Property) time.Time { return p.CreatedAt },
		func(p model.Property) string { return p.ID })
	search := strings.TrimSpace(q.Search)
	items := aggregate.Filter(all, func(p model.Property) bool {
		textMatch := search == "" || containsFold(p.Name, search) || containsFold(p.City, search)
		return textMatch && matches(string(p.Status), q.Status)
	})
	return paginate(items, q)
}

func (r *Repository) GetProperty(id string) (model.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.state.Properties[id]
	if !ok {
		return model.Property{}, notFound("property", id)
	}
	return p, nil
}

// CreateProperty stores a property managed by managerID together with
// in.Units vacant unit records.
func (r *Repository) CreateProperty(managerID string, in model.PropertyInput) (model.Property, error) {
	fields := [][2]string{
		{"name", in.Name},
		{"address", in.Address},
		{"city", in.City},
		{"state", in.State},
		{"zipCode", in.ZipCode},
		{"type", string(in.Type)},
	}
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return model.Property{}, invalidf("Missing required field: %s", f[0])
		}
	}
	if !in.Type.Valid() {
		return model.Property{}, invalidf("Unknown property type %q", in.Type)
	}
	if in.Status == "" {
		in.Status = model.PropertyActive
	}
	if !in.Status.Valid() {
		return model.Property{}, invalidf("Unknown property status %q", in.Status)
	}
	if in.Units < 0 {
		return model.Property{}, invalidf("Units cannot be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	p := model.Property{
		ID:          newID("prop"),
		Name:        strings.TrimSpace(in.Name),
		Address:     strings.TrimSpace(in.Address),
		City:        strings.TrimSpace(in.City),
		State:       strings.TrimSpace(in.State),
		ZipCode:     strings.TrimSpace(in.ZipCode),
		Type:        in.Type,
		Status:      in.Status,
		Units:       in.Units,
		ImageURL:    in.ImageURL,
		Description: in.Description,
		Amenities:   cloneStrings(in.Amenities),
		ManagerID:   managerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Amenities == nil {
		p.Amenities = []string{}
	}
	r.state.Properties[p.ID] = p
	r.addUnitsLocked(p.ID, in.Units, 0)
	if err := r.commitLocked(); err != nil {
		return model.Property{}, err
	}
	return p, nil
}

func (r *Repository) addUnitsLocked(propertyID string, count int, rent float64) {
	for i := range count {
		floor := i/unitsPerFloor + 1
		u := model.Unit{
			ID:         newID("unit"),
			PropertyID: propertyID,
			UnitNumber: fmt.Sprintf("%d%02d", floor, i%unitsPerFloor+1),
			Floor:      floor,
			Rent:       rent,
			Status:     model.UnitVacant,
		}
		r.state.Units[u.ID] = u
	}
}

func (r *Repository) UpdateProperty(id string, patch model.PropertyPatch) (model.Property, error) {
	if patch.Type != nil && !patch.Type.Valid() {
		return model.Property{}, invalidf("Unknown property type %q", *patch.Type)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return model.Property{}, invalidf("Unknown property status %q", *patch.Status)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return model.Property{}, invalidf("Property name cannot be blank")
	}
	if patch.MonthlyRevenue != nil && *patch.MonthlyRevenue < 0 {
		return model.Property{}, invalidf("Monthly revenue cannot be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.Properties[id]
	if !ok {
		return model.Property{}, notFound("property", id)
	}
	patch.Amenities = cloneStrings(patch.Amenities)
	p = patch.Apply(p)
	p.UpdatedAt = r.now().UTC()
	r.state.Properties[id] = p
	if err := r.commitLocked(); err != nil {
		return model.Property{}, err
	}
	return p, nil
}

// DeleteProperty removes a property and its units. A property with tenants
// cannot be deleted.
func (r *Repository) DeleteProperty(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.Properties[id]; !ok {
		return notFound("property", id)
	}
	for _, t := range r.state.Tenants {
		if t.PropertyID == id {
			return &Error{Err: ErrConflict, Message: "Property still has tenants"}
		}
	}
	for unitID, u := range r.state.Units {
		if u.PropertyID == id {
			delete(r.state.Units, unitID)
		}
	}
	delete(r.state.Properties, id)
	return r.commitLocked()
}

// ListUnits returns a property's units ordered by unit number.
func (r *Repository) ListUnits(propertyID string) ([]model.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.state.Properties[propertyID]; !ok {
		return nil, notFound("property", propertyID)
	}
	return r.unitsLocked(propertyID), nil
}

func (r *Repository) unitsLocked(propertyID string) []model.Unit {
	units := []model.Unit{}
	for _, u := range r.state.Units {
		if u.PropertyID == propertyID {
			units = append(units, u)
		}
	}
	slices.SortFunc(units, func(a, b model.Unit) int {
		return cmp.Or(cmp.Compare(a.Floor, b.Floor), cmp.Compare(a.UnitNumber, b.UnitNumber))
	})
	return units
}

// refreshPropertyLocked recomputes the property's occupancy and rent roll
// from its units.
func (r *Repository) refreshPropertyLocked(propertyID string) {
	p, ok := r.state.Properties[propertyID]
	if !ok {
		return
	}
	occupied := 0
	revenue := 0.0
	for _, u := range r.unitsLocked(propertyID) {
		if u.Status == model.UnitOccupied {
			occupied++
			revenue += u.Rent
		}
	}
	p.OccupiedUnits = occupied
	p.MonthlyRevenue = revenue
	r.state.Properties[propertyID] = p
}

func (r *Repository) ListTenants(q Query) model.Page[model.Tenant] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := newestFirst(r.state.Tenants,
		func(t model.Tenant) time.Time { return t.MoveInDate },
		func(t model.Tenant) string { return t.ID })
	search := strings.TrimSpace(q.Search)
	items := aggregate.Filter(all, func(t model.Tenant) bool {
		textMatch := search == "" || containsFold(t.User.Name, search) || containsFold(t.User.Email, search)
		return textMatch && matches(t.PropertyID, q.PropertyID) && matches(string(t.LeaseStatus), q.Status)
	})
	return paginate(items, q)
}

func (r *Repository) GetTenant(id string) (model.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.state.Tenants[id]
	if !ok {
		return model.Tenant{}, notFound("tenant", id)
	}
	return t, nil
}

// CreateTenant leases a vacant unit. The tenant's user account is reused
// when the email is already registered.
func (r *Repository) CreateTenant(in model.TenantInput) (model.Tenant, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" || strings.TrimSpace(in.UnitID) == "" {
		return model.Tenant{}, invalidf("Name, email, and unit are required")
	}
	if err := validEmail(in.Email); err != nil {
		return model.Tenant{}, err
	}
	if in.MonthlyRent < 0 || in.SecurityDeposit < 0 {
		return model.Tenant{}, invalidf("Rent and deposit cannot be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	unit, ok := r.state.Units[in.UnitID]
	if !ok {
		return model.Tenant{}, notFound("unit", in.UnitID)
	}
	if in.PropertyID != "" && in.PropertyID != unit.PropertyID {
		return model.Tenant{}, invalidf("Unit %s does not belong to property %s", unit.ID, in.PropertyID)
	}
	if unit.Status != model.UnitVacant {
		return model.Tenant{}, &Error{Err: ErrConflict, Message: fmt.Sprintf("Unit %s is not vacant", unit.UnitNumber)}
	}
	now := r.now().UTC()
	start := in.LeaseStart
	if start.IsZero() {
		start = now
	}
	end := in.LeaseEnd
	if end.IsZero() {
		end = start.Add(defaultLeaseLength)
	}
	if end.Before(start) {
		return model.Tenant{}, invalidf("Lease cannot end before it starts")
	}
	rent := in.MonthlyRent
	if rent == 0 {
		rent = unit.Rent
	}

	user, exists := r.userByEmailLocked(in.Email)
	if !exists {
		user = UserRecord{User: model.User{
			ID:        newID("usr"),
			Email:     in.Email,
			Name:      in.Name,
			Role:      model.RoleTenant,
			Phone:     strings.TrimSpace(in.Phone),
			CreatedAt: now,
			UpdatedAt: now,
		}}
		r.state.Users[user.ID] = user
	}
	status := model.LeaseActive
	if start.After(now) {
		status = model.LeasePending
	}
	t := model.Tenant{
		ID:               newID("ten"),
		UserID:           user.ID,
		User:             user.User,
		UnitID:           unit.ID,
		PropertyID:       unit.PropertyID,
		LeaseStart:       start,
		LeaseEnd:         end,
		LeaseStatus:      status,
		MonthlyRent:      rent,
		SecurityDeposit:  in.SecurityDeposit,
		EmergencyContact: in.EmergencyContact,
		MoveInDate:       start,
	}
	r.state.Tenants[t.ID] = t
	unit.Status = model.UnitOccupied
	unit.TenantID = t.ID
	if unit.Rent == 0 {
		unit.Rent = rent
	}
	r.state.Units[unit.ID] = unit
	r.refreshPropertyLocked(unit.PropertyID)
	if err := r.commitLocked(); err != nil {
		return model.Tenant{}, err
	}
	return t, nil
}

func (r *Repository) ListPayments(q Query) model.Page[model.Payment] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := newestFirst(r.state.Payments,
		func(p model.Payment) time.Time { return p.CreatedAt },
		func(p model.Payment) string { return p.ID })
	items := aggregate.Filter(all, func(p model.Payment) bool {
		return matches(string(p.Status), q.Status) &&
			matches(p.TenantID, q.TenantID) &&
			matches(p.PropertyID, q.PropertyID)
	})
	return paginate(items, q)
}

// CreatePayment records a pending payment for a tenant.
func (r *Repository) CreatePayment(in model.PaymentInput) (model.Payment, error) {
	if strings.TrimSpace(in.TenantID) == "" || in.Amount == 0 {
		return model.Payment{}, invalidf("Tenant ID and amount are required")
	}
	if in.Amount < 0 {
		return model.Payment{}, invalidf("Amount must be greater than zero")
	}
	if in.Method == "" {
		in.Method = model.MethodCard
	}
	if !in.Method.Valid() {
		return model.Payment{}, invalidf("Unknown payment method %q", in.Method)
	}
	if strings.TrimSpace(in.Description) == "" {
		in.Description = "Rent Payment"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tenant, ok := r.state.Tenants[in.TenantID]
	if !ok {
		return model.Payment{}, notFound("tenant", in.TenantID)
	}
	now := r.now().UTC()
	due := now
	if in.DueDate != nil {
		due = in.DueDate.UTC()
	}
	p := model.Payment{
		ID:          newID("pay"),
		TenantID:    tenant.ID,
		PropertyID:  tenant.PropertyID,
		UnitID:      tenant.UnitID,
		Amount:      in.Amount,
		Status:      model.PaymentPending,
		Method:      in.Method,
		Description: in.Description,
		DueDate:     due,
		CreatedAt:   now,
	}
	r.state.Payments[p.ID] = p
	r.notifyLocked(tenant.UserID, model.NotifyPaymentDue, "Payment pending",
		fmt.Sprintf("%s of $%.2f is pending", p.Description, p.Amount), "/payments")
	if err := r.commitLocked(); err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

// CreatePaymentIntent issues a client secret for a card payment. Nothing is
// stored until the payment itself is created.
func (r *Repository) CreatePaymentIntent(req model.PaymentIntentRequest) (model.PaymentIntent, error) {
	if strings.TrimSpace(req.TenantID) == "" || req.Amount <= 0 {
		return model.PaymentIntent{}, invalidf("Tenant ID and amount are required")
	}
	if _, err := r.GetTenant(req.TenantID); err != nil {
		return model.PaymentIntent{}, err
	}
	return model.PaymentIntent{
		ClientSecret: newID("pi") + "_secret_" + strings.TrimPrefix(newID("s"), "s_"),
		Amount:       req.Amount,
		Currency:     "usd",
	}, nil
}

func (r *Repository) ListTickets(q Query) model.Page[model.MaintenanceTicket] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := newestFirst(r.state.Tickets,
		func(t model.MaintenanceTicket) time.Time { return t.CreatedAt },
		func(t model.MaintenanceTicket) string { return t.ID })
	search := strings.TrimSpace(q.Search)
	items := aggregate.Filter(all, func(t model.MaintenanceTicket) bool {
		textMatch := search == "" || containsFold(t.Title, search) || containsFold(t.Description, search)
		return textMatch &&
			matches(string(t.Status), q.Status) &&
			matches(string(t.Priority), q.Priority) &&
			matches(t.PropertyID, q.PropertyID) &&
			matches(t.TenantID, q.TenantID)
	})
	return paginate(items, q)
}

func (r *Repository) GetTicket(id string) (model.MaintenanceTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.state.Tickets[id]
	if !ok {
		return model.MaintenanceTicket{}, notFound("ticket", id)
	}
	return t, nil
}

// CreateTicket opens a ticket reported by reporter. A tenant reporter's
// unit and property fill in any location the request leaves out.
func (r *Repository) CreateTicket(reporter model.User, in model.TicketInput) (model.MaintenanceTicket, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" || in.Category == "" {
		return model.MaintenanceTicket{}, invalidf("Title, description, and category are required")
	}
	if !in.Category.Valid() {
		return model.MaintenanceTicket{}, invalidf("Unknown ticket category %q", in.Category)
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return model.MaintenanceTicket{}, invalidf("Unknown ticket priority %q", in.Priority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if in.TenantID == "" && reporter.Role == model.RoleTenant {
		for _, t := range r.state.Tenants {
			if t.UserID == reporter.ID {
				in.TenantID = t.ID
				break
			}
		}
	}
	if in.TenantID != "" {
		tenant, ok := r.state.Tenants[in.TenantID]
		if !ok {
			return model.MaintenanceTicket{}, notFound("tenant", in.TenantID)
		}
		in.PropertyID = cmp.Or(in.PropertyID, tenant.PropertyID)
		in.UnitID = cmp.Or(in.UnitID, tenant.UnitID)
	}
	property, ok := r.state.Properties[in.PropertyID]
	if in.PropertyID != "" && !ok {
		return model.MaintenanceTicket{}, notFound("property", in.PropertyID)
	}
	now := r.now().UTC()
	t := model.MaintenanceTicket{
		ID:          newID("tkt"),
		TenantID:    in.TenantID,
		PropertyID:  in.PropertyID,
		UnitID:      in.UnitID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Priority:    in.Priority,
		Status:      model.TicketOpen,
		Images:      cloneStrings(in.Images),
		Notes:       []model.TicketNote{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Images == nil {
		t.Images = []string{}
	}
	r.state.Tickets[t.ID] = t
	if ok && property.ManagerID != reporter.ID {
		r.notifyLocked(property.ManagerID, model.NotifyMaintenanceUpdate, "New maintenance request",
			fmt.Sprintf("%s at %s", t.Title, property.Name), "/maintenance/"+t.ID)
	}
	if err := r.commitLocked(); err != nil {
		return model.MaintenanceTicket{}, err
	}
	return t, nil
}

func (r *Repository) UpdateTicket(id string, patch model.TicketPatch) (model.MaintenanceTicket, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return model.MaintenanceTicket{}, invalidf("Unknown ticket status %q", *patch.Status)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return model.MaintenanceTicket{}, invalidf("Unknown ticket priority %q", *patch.Priority)
	}
	for _, cost := range []*float64{patch.EstimatedCost, patch.ActualCost} {
		if cost != nil && *cost < 0 {
			return model.MaintenanceTicket{}, invalidf("Costs cannot be negative")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.Tickets[id]
	if !ok {
		return model.MaintenanceTicket{}, notFound("ticket", id)
	}
	before := t.Status
	t = patch.Apply(t)
	r.touchTicketLocked(&t, before)
	if err := r.commitLocked(); err != nil {
		return model.MaintenanceTicket{}, err
	}
	return t, nil
}

// AssignTicket hands a ticket to assignee and starts work on an open one.
func (r *Repository) AssignTicket(id, assignee string) (model.MaintenanceTicket, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return model.MaintenanceTicket{}, invalidf("Assignee is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.Tickets[id]
	if !ok {
		return model.MaintenanceTicket{}, notFound("ticket", id)
	}
	before := t.Status
	t.AssignedTo = assignee
	if t.Status == model.TicketOpen {
		t.Status = model.TicketInProgress
	}
	r.touchTicketLocked(&t, before)
	if err := r.commitLocked(); err != nil {
		return model.MaintenanceTicket{}, err
	}
	return t, nil
}

// touchTicketLocked stamps and stores t, recording resolution and telling
// the tenant when the status moved.
func (r *Repository) touchTicketLocked(t *model.MaintenanceTicket, before model.TicketStatus) {
	now := r.now().UTC()
	t.UpdatedAt = now
	if t.Status.Terminal() && t.ResolvedDate == nil {
		t.ResolvedDate = &now
	}
	if !t.Status.Terminal() {
		t.ResolvedDate = nil
	}
	r.state.Tickets[t.ID] = *t
	if t.Status == before {
		return
	}
	if tenant, ok := r.state.Tenants[t.TenantID]; ok {
		r.notifyLocked(tenant.UserID, model.NotifyMaintenanceUpdate, "Maintenance update",
			fmt.Sprintf("%s is now %s", t.Title, strings.ReplaceAll(string(t.Status), "_", " ")), "/maintenance/"+t.ID)
	}
}

// ListNotifications returns userID's notifications, newest first.
func (r *Repository) ListNotifications(userID string, unreadOnly bool) []model.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := newestFirst(r.state.Notifications,
		func(n model.Notification) time.Time { return n.CreatedAt },
		func(n model.Notification) string { return n.ID })
	return aggregate.Filter(all, func(n model.Notification) bool {
		return n.UserID == userID && (!unreadOnly || !n.Read)
	})
}

// MarkNotificationRead marks one of userID's notifications read. Another
// user's notification is reported as not found.
func (r *Repository) MarkNotificationRead(userID, id string) (model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.state.Notifications[id]
	if !ok || n.UserID != userID {
		return model.Notification{}, notFound("notification", id)
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	r.state.Notifications[id] = n
	if err := r.commitLocked(); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

// MarkAllNotificationsRead reports how many notifications changed.
func (r *Repository) MarkAllNotificationsRead(userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated := 0
	for id, n := range r.state.Notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			r.state.Notifications[id] = n
			updated++
		}
	}
	if updated == 0 {
		return 0, nil
	}
	if err := r.commitLocked(); err != nil {
		return 0, err
	}
	return updated, nil
}

// DashboardStats summarizes the whole portfolio.
func (r *Repository) DashboardStats() model.DashboardStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	properties := make([]model.Property, 0, len(r.state.Properties))
	for _, p := range r.state.Properties {
		properties = append(properties, p)
	}
	slices.SortFunc(properties, func(a, b model.Property) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	payments := newestFirst(r.state.Payments,
		func(p model.Payment) time.Time { return p.CreatedAt },
		func(p model.Payment) string { return p.ID })
	tickets := newestFirst(r.state.Tickets,
		func(t model.MaintenanceTicket) time.Time { return t.CreatedAt },
		func(t model.MaintenanceTicket) string { return t.ID })
	tenants := make([]model.Tenant, 0, len(r.state.Tenants))
	for _, t := range r.state.Tenants {
		tenants = append(tenants, t)
	}

	stats := model.DashboardStats{
		TotalProperties:     len(properties),
		TotalRevenue:        aggregate.SumPayments(payments).Collected,
		ExpiringLeases:      len(aggregate.ExpiringLeases(tenants, now, aggregate.DefaultLeaseWindow)),
		RecentPayments:      payments[:min(recentLimit, len(payments))],
		RecentTickets:       tickets[:min(recentLimit, len(tickets))],
		RevenueByMonth:      slices.Clone(r.state.Revenue),
		OccupancyByProperty: aggregate.OccupancyByProperty(properties),
	}
	occupied := 0
	for _, p := range properties {
		stats.TotalUnits += p.Units
		occupied += p.OccupiedUnits
	}
	stats.OccupancyRate = aggregate.OccupancyRate(occupied, stats.TotalUnits)
	for _, p := range payments {
		if p.Status == model.PaymentPending {
			stats.PendingPayments++
		}
	}
	for _, t := range tickets {
		if !t.Status.Terminal() {
			stats.OpenTickets++
		}
	}
	if stats.RevenueByMonth == nil {
		stats.RevenueByMonth = []model.MonthlyRevenue{}
	}
	return stats
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return slices.Clone(in)
}
