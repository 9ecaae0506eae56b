package web

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/xerrors"

	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/store"
)

func (s *Server) adminPage(c *gin.Context) {
	data := gin.H{
		"ModelStatuses":       store.ModelStatuses,
		"SpaceAvailabilities": store.SpaceAvailabilities,
		"GateStatuses":        store.AdminGateStatuses,
	}
	var err error
	if data["Models"], err = s.store.ListModels(); err == nil {
		if data["Users"], err = s.store.ListUsers(); err == nil {
			if data["Spaces"], err = s.store.ListSpaces(false); err == nil {
				if data["Gates"], err = s.store.ListGates(); err == nil {
					data["Staff"], err = s.store.ListStaff()
				}
			}
		}
	}
	if err != nil {
		slog.Error("load admin dashboard", lgr.Err(err))
		s.fail(c, http.StatusInternalServerError, "Could not load the admin dashboard.")
		return
	}
	s.page(c, http.StatusOK, "admin", data)
}

// done ends a form post with a flash matching the store error.
func done(c *gin.Context, to string, err error, success string) {
	switch {
	case err == nil:
		back(c, to, "success", success)
	case errors.Is(err, store.ErrNotFound):
		back(c, to, "error", "Not found: "+err.Error())
	case errors.Is(err, store.ErrInvalidValue):
		back(c, to, "error", err.Error())
	default:
		slog.Error("update failed", "path", c.Request.URL.Path, lgr.Err(err))
		back(c, to, "error", "The change could not be saved.")
	}
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, xerrors.Errorf("%w: id %q", store.ErrNotFound, c.Param("id"))
	}
	return uint(id), nil
}

type modelForm struct {
	Name    string `form:"name" binding:"required"`
	Version string `form:"version" binding:"required"`
	Status  string `form:"status" binding:"required"`
}

func (s *Server) addModel(c *gin.Context) {
	var form modelForm
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/admin", "error", "Model name, version and status are required.")
		return
	}
	_, err := s.store.AddModel(form.Name, form.Version, form.Status)
	done(c, "/admin", err, "Model "+form.Name+" "+form.Version+" added.")
}

type spaceForm struct {
	Location     string `form:"location" binding:"required"`
	Capacity     int    `form:"capacity" binding:"required,min=1"`
	Availability string `form:"availability"`
}

func (s *Server) addSpace(c *gin.Context) {
	form := spaceForm{Availability: store.SpaceAvailable}
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/admin", "error", "A space needs a location and a positive capacity.")
		return
	}
	_, err := s.store.AddSpace(form.Location, form.Capacity, form.Availability)
	done(c, "/admin", err, "Space at "+form.Location+" added.")
}

type statusForm struct {
	Status string `form:"status" binding:"required"`
}

func (s *Server) updateSpaceAvailability(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		done(c, "/admin", err, "")
		return
	}
	var form struct {
		Availability string `form:"availability" binding:"required"`
	}
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/admin", "error", "Choose an availability.")
		return
	}
	done(c, "/admin", s.store.UpdateSpaceAvailability(id, form.Availability), "Space availability updated.")
}

type gateForm struct {
	Name     string `form:"name" binding:"required"`
	Location string `form:"location"`
	Status   string `form:"status"`
}

func (s *Server) addGate(c *gin.Context) {
	form := gateForm{Status: store.GateOpen}
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/admin", "error", "A gate needs a name.")
		return
	}
	_, err := s.store.AddGate(form.Name, form.Location, form.Status)
	done(c, "/admin", err, "Gate "+form.Name+" added.")
}

// adminUpdateGateStatus only offers the admin statuses. Flagging a gate as
// crowded is left to the staff monitoring it.
func (s *Server) adminUpdateGateStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		done(c, "/admin", err, "")
		return
	}
	var form statusForm
	if err := c.ShouldBind(&form); err != nil || !slices.Contains(store.AdminGateStatuses, form.Status) {
		back(c, "/admin", "error", "Choose open, closed or maintenance.")
		return
	}
	done(c, "/admin", s.store.UpdateGateStatus(id, form.Status), "Gate status updated.")
}

type staffForm struct {
	UserID  uint   `form:"user_id" binding:"required"`
	Name    string `form:"name" binding:"required"`
	Role    string `form:"role"`
	Contact string `form:"contact"`
}

func (s *Server) addStaff(c *gin.Context) {
	var form staffForm
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/admin", "error", "Pick an account and a name for the staff member.")
		return
	}
	_, err := s.store.AddStaff(form.UserID, form.Name, form.Role, form.Contact)
	done(c, "/admin", err, form.Name+" is now staff.")
}

type assignForm struct {
	StaffID uint `form:"staff_id" binding:"required"`
	GateID  uint `form:"gate_id" binding:"required"`
}

func (s *Server) assignGate(c *gin.Context) {
	var form assignForm
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/admin", "error", "Pick a staff member and a gate.")
		return
	}
	done(c, "/admin", s.store.AssignGateToStaff(form.StaffID, form.GateID), "Gate assigned.")
}
