package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mpromonet/gin-spotdetect/internal/auth"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/store"
)

func (s *Server) staffPage(c *gin.Context) {
	p, _ := auth.Current(c)
	member, err := s.store.StaffByUserID(p.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.page(c, http.StatusOK, "staff", gin.H{"Missing": true})
		return
	}
	if err != nil {
		slog.Error("load staff", "user", p.ID, lgr.Err(err))
		s.fail(c, http.StatusInternalServerError, "Could not load staff information.")
		return
	}
	gates, err := s.store.StaffGates(member.StaffID)
	if err != nil {
		slog.Error("load staff gates", "staff", member.StaffID, lgr.Err(err))
		s.fail(c, http.StatusInternalServerError, "Could not load assigned gates.")
		return
	}
	s.page(c, http.StatusOK, "staff", gin.H{
		"Staff":    member,
		"Gates":    gates,
		"Statuses": store.StaffGateStatuses,
		"Crowd":    s.crowd.Sample(),
	})
}

// staffUpdateGateStatus accepts changes only on gates assigned to the
// logged in staff member.
func (s *Server) staffUpdateGateStatus(c *gin.Context) {
	p, _ := auth.Current(c)
	id, err := pathID(c)
	if err != nil {
		back(c, "/staff", "error", "Unknown gate.")
		return
	}
	member, err := s.store.StaffByUserID(p.ID)
	if err != nil {
		back(c, "/staff", "error", "Staff information not found. Please contact an admin.")
		return
	}
	ok, err := s.store.StaffMonitorsGate(member.StaffID, id)
	if err != nil {
		slog.Error("check gate assignment", "staff", member.StaffID, "gate", id, lgr.Err(err))
		back(c, "/staff", "error", "Could not update the gate.")
		return
	}
	if !ok {
		slog.Warn("gate not assigned", "staff", member.StaffID, "gate", id)
		s.fail(c, http.StatusForbidden, "This gate is not assigned to you.")
		return
	}
	var form statusForm
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/staff", "error", "Choose a status.")
		return
	}
	done(c, "/staff", s.store.UpdateGateStatus(id, form.Status), "Gate status updated.")
}
