package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/dataset"
	"github.com/propmanage/propsync/internal/model"
)

func listQuery(r *http.Request) dataset.Query {
	q := r.URL.Query()
	return dataset.Query{
		Page:       parseBoundedInt(q.Get("page"), model.DefaultPage, 1, math.MaxInt32),
		Limit:      parseBoundedInt(q.Get("limit"), dataset.DefaultLimit, 1, model.MaxLimit),
		Search:     strings.TrimSpace(q.Get("search")),
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		PropertyID: q.Get("propertyId"),
		TenantID:   q.Get("tenantId"),
	}
}

func (s *Server) respondAuth(w http.ResponseWriter, r *http.Request, status int, user model.User) {
	tokens, err := s.tokens.issue(user)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, status, model.AuthResponse{User: user, Tokens: tokens})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds model.LoginCredentials
	if !s.decodeJSONBody(w, r, &creds) {
		return
	}
	user, err := s.repo.Authenticate(creds.Email, creds.Password)
	if err != nil {
		if errors.Is(err, dataset.ErrUnauthorized) {
			s.logger.Info("login rejected", zap.String("email", strings.TrimSpace(creds.Email)))
		}
		s.writeFailure(w, r, err)
		return
	}
	s.respondAuth(w, r, http.StatusOK, user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.Role == model.RoleAdmin {
		writeError(w, http.StatusForbidden, "Administrator accounts cannot self-register")
		return
	}
	user, err := s.repo.Register(req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.logger.Info("user registered", zap.String("user", user.ID), zap.String("role", string(user.Role)))
	s.respondAuth(w, r, http.StatusCreated, user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}
	claims, authErr := s.tokens.parse(strings.TrimSpace(req.RefreshToken), tokenTypeRefresh)
	if authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	user, err := s.repo.UserByID(claims.Subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	s.respondAuth(w, r, http.StatusOK, user)
}

// staff gates writes that only managers and administrators may make.
func staff(w http.ResponseWriter, claims *tokenClaims) bool {
	if authErr := requireRole(claims, model.RoleAdmin, model.RoleManager); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return false
	}
	return true
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	writePage(w, s.repo.ListProperties(listQuery(r)))
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.repo.GetProperty(id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request, claims *tokenClaims) {
	if !staff(w, claims) {
		return
	}
	var in model.PropertyInput
	if !s.decodeJSONBody(w, r, &in) {
		return
	}
	p, err := s.repo.CreateProperty(claims.Subject, in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionCreated, p.ID, model.ResourceProperties, model.ResourceUnits)
	writeData(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProperty(w http.ResponseWriter, r *http.Request, claims *tokenClaims, id string) {
	if !staff(w, claims) {
		return
	}
	var patch model.PropertyPatch
	if !s.decodeJSONBody(w, r, &patch) {
		return
	}
	p, err := s.repo.UpdateProperty(id, patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionUpdated, p.ID, model.ResourceProperties)
	writeData(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request, claims *tokenClaims, id string) {
	if !staff(w, claims) {
		return
	}
	if err := s.repo.DeleteProperty(id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionDeleted, id, model.ResourceProperties, model.ResourceUnits)
	writeJSON(w, http.StatusOK, dataEnvelope{Success: true, Message: "Property deleted"})
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request, propertyID string) {
	units, err := s.repo.ListUnits(propertyID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, units)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	writePage(w, s.repo.ListTenants(listQuery(r)))
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request, id string) {
	t, err := s.repo.GetTenant(id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request, claims *tokenClaims) {
	if !staff(w, claims) {
		return
	}
	var in model.TenantInput
	if !s.decodeJSONBody(w, r, &in) {
		return
	}
	t, err := s.repo.CreateTenant(in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionCreated, t.ID, model.ResourceTenants, model.ResourceUnits, model.ResourceProperties)
	writeData(w, http.StatusCreated, t)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	writePage(w, s.repo.ListPayments(listQuery(r)))
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var in model.PaymentInput
	if !s.decodeJSONBody(w, r, &in) {
		return
	}
	p, err := s.repo.CreatePayment(in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionCreated, p.ID, model.ResourcePayments, model.ResourceNotifications)
	writeData(w, http.StatusCreated, p)
}

func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentIntentRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	intent, err := s.repo.CreatePaymentIntent(req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, intent)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	writePage(w, s.repo.ListTickets(listQuery(r)))
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request, id string) {
	t, err := s.repo.GetTicket(id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request, claims *tokenClaims) {
	var in model.TicketInput
	if !s.decodeJSONBody(w, r, &in) {
		return
	}
	reporter, err := s.repo.UserByID(claims.Subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	t, err := s.repo.CreateTicket(reporter, in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionCreated, t.ID, model.ResourceTickets, model.ResourceNotifications)
	writeData(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request, claims *tokenClaims, id string) {
	if !staff(w, claims) {
		return
	}
	var patch model.TicketPatch
	if !s.decodeJSONBody(w, r, &patch) {
		return
	}
	t, err := s.repo.UpdateTicket(id, patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionUpdated, t.ID, model.ResourceTickets, model.ResourceNotifications)
	writeData(w, http.StatusOK, t)
}

func (s *Server) handleAssignTicket(w http.ResponseWriter, r *http.Request, claims *tokenClaims, id string) {
	if !staff(w, claims) {
		return
	}
	var req struct {
		AssignedTo string `json:"assignedTo"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	t, err := s.repo.AssignTicket(id, req.AssignedTo)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(model.ActionUpdated, t.ID, model.ResourceTickets)
	writeData(w, http.StatusOK, t)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, claims *tokenClaims) {
	items := s.repo.ListNotifications(claims.Subject, parseBool(r.URL.Query().Get("unread"), false))
	writePage(w, model.NewPage(items, 1, max(len(items), 1), len(items)))
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, claims *tokenClaims, id string) {
	n, err := s.repo.MarkNotificationRead(claims.Subject, id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.hub.Publish(model.ChangeEvent{
		Resource: model.ResourceNotifications,
		Action:   model.ActionUpdated,
		ID:       n.ID,
		At:       s.now().UTC(),
	}, claims.Subject)
	writeData(w, http.StatusOK, n)
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request, claims *tokenClaims) {
	updated, err := s.repo.MarkAllNotificationsRead(claims.Subject)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if updated > 0 {
		s.hub.Publish(model.ChangeEvent{
			Resource: model.ResourceNotifications,
			Action:   model.ActionUpdated,
			At:       s.now().UTC(),
		}, claims.Subject)
	}
	writeData(w, http.StatusOK, map[string]int{"updated": updated})
}
