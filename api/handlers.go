package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/workorder"
)

// sessionResponse is the wire shape for a session.
type sessionResponse struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Pooled    bool      `json:"pooled"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.sessions.Create(r.Context(), s.rtConfig)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, sessionResponse{
		ID:        sess.ID,
		State:     sess.State().String(),
		Pooled:    sess.Pooled,
		CreatedAt: sess.CreatedAt,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) error {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		return errors.ErrSessionGone
	}
	return writeJSON(w, http.StatusOK, sessionResponse{
		ID:        sess.ID,
		State:     sess.State().String(),
		Pooled:    sess.Pooled,
		CreatedAt: sess.CreatedAt,
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) error {
	s.sessions.Cleanup(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// orderResponse is the wire shape for a work order.
type orderResponse struct {
	ID                 string           `json:"id"`
	Description        string           `json:"description"`
	Priority           string           `json:"priority"`
	Status             string           `json:"status"`
	AssignedTechnician string           `json:"assigned_technician,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	Location           *locationPayload `json:"location,omitempty"`
	Notes              []notePayload    `json:"notes,omitempty"`
}

type locationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type notePayload struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
}

func orderToResponse(o *workorder.Order) orderResponse {
	resp := orderResponse{
		ID:                 o.ID,
		Description:        o.Description,
		Priority:           o.Priority.String(),
		Status:             o.Status.String(),
		AssignedTechnician: o.AssignedTechnician,
		CreatedAt:          o.CreatedAt,
	}
	if !o.StartedAt.IsZero() {
		t := o.StartedAt
		resp.StartedAt = &t
	}
	if !o.CompletedAt.IsZero() {
		t := o.CompletedAt
		resp.CompletedAt = &t
	}
	if o.Location != nil {
		resp.Location = &locationPayload{
			Latitude:  o.Location.Latitude(),
			Longitude: o.Location.Longitude(),
		}
	}
	for _, n := range o.Notes {
		resp.Notes = append(resp.Notes, notePayload{
			Timestamp: n.Timestamp,
			Content:   n.Content,
			Author:    n.Author,
		})
	}
	return resp
}

func parsePriority(raw string) (workorder.Priority, error) {
	switch raw {
	case "low":
		return workorder.PriorityLow, nil
	case "medium", "":
		return workorder.PriorityMedium, nil
	case "high":
		return workorder.PriorityHigh, nil
	case "urgent":
		return workorder.PriorityUrgent, nil
	default:
		return 0, errors.WrapInvalid(
			fmt.Errorf("priority %q: %w", raw, errors.ErrInvalidPriority),
			"api", "parsePriority", "parse priority")
	}
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return err
	}

	order, err := s.orders.CreateOrder(req.ID, req.Description, priority)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, orderToResponse(order))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) error {
	order := s.orders.GetOrder(r.PathValue("id"))
	if order == nil {
		return errors.ErrOrderNotFound
	}
	return writeJSON(w, http.StatusOK, orderToResponse(order))
}

func (s *Server) assignOrder(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		TechnicianID string `json:"technician_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.TechnicianID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("technician_id is required"),
			"api", "assignOrder", "validate request")
	}

	id := r.PathValue("id")
	if err := s.orders.AssignOrder(id, req.TechnicianID); err != nil {
		return err
	}
	s.alerts.HandleWorkOrderUpdate(id, "assigned", "", "", false)
	return writeJSON(w, http.StatusOK, orderToResponse(s.orders.GetOrder(id)))
}

func (s *Server) startOrder(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if err := s.orders.StartOrder(id); err != nil {
		return err
	}
	s.alerts.HandleWorkOrderUpdate(id, "in_progress", "", "", false)
	return writeJSON(w, http.StatusOK, orderToResponse(s.orders.GetOrder(id)))
}

func (s *Server) completeOrder(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Notes       string `json:"notes"`
		Issues      string `json:"issues"`
		AlertOffice bool   `json:"alert_office"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	id := r.PathValue("id")
	if err := s.orders.CompleteOrder(id, req.Notes); err != nil {
		return err
	}
	s.alerts.HandleWorkOrderUpdate(id, "completed", req.Notes, req.Issues, req.AlertOffice)
	return writeJSON(w, http.StatusOK, orderToResponse(s.orders.GetOrder(id)))
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	id := r.PathValue("id")
	if err := s.orders.CancelOrder(id, req.Reason); err != nil {
		return err
	}
	s.alerts.HandleWorkOrderUpdate(id, "cancelled", req.Reason, "", false)
	return writeJSON(w, http.StatusOK, orderToResponse(s.orders.GetOrder(id)))
}

func (s *Server) holdOrder(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if err := s.orders.HoldOrder(id); err != nil {
		return err
	}
	s.alerts.HandleWorkOrderUpdate(id, "on_hold", "", "", false)
	return writeJSON(w, http.StatusOK, orderToResponse(s.orders.GetOrder(id)))
}

func (s *Server) resumeOrder(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if err := s.orders.ResumeOrder(id); err != nil {
		return err
	}
	order := s.orders.GetOrder(id)
	s.alerts.HandleWorkOrderUpdate(id, order.Status.String(), "", "", false)
	return writeJSON(w, http.StatusOK, orderToResponse(order))
}

func (s *Server) updateLocation(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	id := r.PathValue("id")
	if err := s.orders.UpdateLocation(id, req.Latitude, req.Longitude); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, orderToResponse(s.orders.GetOrder(id)))
}

func (s *Server) getQueue(w http.ResponseWriter, _ *http.Request) error {
	queue := s.orders.GetQueue()
	resp := make([]orderResponse, 0, len(queue))
	for _, o := range queue {
		resp = append(resp, orderToResponse(o))
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"queue": resp,
		"size":  len(resp),
	})
}

func (s *Server) equipmentAlert(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		EquipmentID string `json:"equipment_id"`
		IssueType   string `json:"issue_type"`
		Description string `json:"description"`
		Severity    int    `json:"severity"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.EquipmentID == "" || req.IssueType == "" {
		return errors.WrapInvalid(
			fmt.Errorf("equipment_id and issue_type are required"),
			"api", "equipmentAlert", "validate request")
	}
	if req.Severity == 0 {
		req.Severity = 1
	}

	s.alerts.HandleEquipmentAlert(req.EquipmentID, req.IssueType, req.Description, req.Severity)
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (s *Server) inventoryAlert(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		ItemID       string `json:"item_id"`
		CurrentLevel int    `json:"current_level"`
		Threshold    int    `json:"threshold"`
		Location     string `json:"location"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.ItemID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("item_id is required"),
			"api", "inventoryAlert", "validate request")
	}

	s.alerts.HandleInventoryAlert(req.ItemID, req.CurrentLevel, req.Threshold, req.Location)
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (s *Server) listAlerts(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"alerts": s.alerts.ActiveAlerts(),
	})
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) error {
	if !s.alerts.Acknowledge(r.Context(), r.PathValue("id")) {
		return errors.WrapInvalid(
			fmt.Errorf("alert %s: %w", r.PathValue("id"), errors.ErrUnknownAlert),
			"api", "acknowledgeAlert", "look up alert")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) unreadCount(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]int{
		"unread_count": s.notifier.UnreadCount(),
	})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) error {
	if !s.notifier.MarkAsRead(r.Context(), r.PathValue("id")) {
		return errors.WrapInvalid(
			fmt.Errorf("notification %s: %w", r.PathValue("id"), errors.ErrUnknownAlert),
			"api", "markRead", "look up notification")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
