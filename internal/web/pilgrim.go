package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mpromonet/gin-spotdetect/internal/auth"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/store"
)

// dashboard is the data shared by the detect page before and after an
// upload.
func (s *Server) dashboard(c *gin.Context) gin.H {
	spaces, err := s.store.ListSpaces(true)
	if err != nil {
		slog.Error("list spaces", lgr.Err(err))
	}
	return gin.H{
		"Crowd":   s.crowd.Sample(),
		"Spaces":  spaces,
		"MapsKey": s.cfg.MapsKey,
	}
}

func (s *Server) detectPage(c *gin.Context) {
	s.page(c, http.StatusOK, "detect", s.dashboard(c))
}

func (s *Server) detect(c *gin.Context) {
	want := domain.MediaKind(c.DefaultPostForm("kind", string(domain.MediaImage)))
	if want != domain.MediaImage && want != domain.MediaVideo {
		want = domain.MediaImage
	}
	data := s.dashboard(c)
	data["Kind"] = want

	fh, kind, err := uploadedFile(c, want)
	if err == nil {
		var d *detection
		d, err = s.runDetection(c, fh, kind)
		if err == nil {
			data["Detection"] = d
			s.page(c, http.StatusOK, "detect", data)
			return
		}
	}

	status, msg := detectionStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("detection failed", "kind", want, lgr.Err(err))
	} else {
		slog.Warn("detection rejected", "kind", want, lgr.Err(err))
	}
	data["Error"] = msg
	s.page(c, status, "detect", data)
}

func (s *Server) history(c *gin.Context) {
	p, _ := auth.Current(c)
	spots, err := s.store.ListSpots(p.Username)
	if err != nil {
		slog.Error("list spots", "username", p.Username, lgr.Err(err))
		s.fail(c, http.StatusInternalServerError, "Could not load your history.")
		return
	}
	s.page(c, http.StatusOK, "history", gin.H{"Spots": spots})
}

func (s *Server) allocations(c *gin.Context) {
	p, _ := auth.Current(c)
	allocs, err := s.store.UserAllocations(p.ID)
	if err != nil {
		slog.Error("list allocations", "user", p.ID, lgr.Err(err))
		s.fail(c, http.StatusInternalServerError, "Could not load your allocations.")
		return
	}
	s.page(c, http.StatusOK, "allocations", gin.H{"Allocations": allocs})
}

type reserveForm struct {
	SpaceID uint `form:"space_id" binding:"required"`
}

func (s *Server) reserve(c *gin.Context) {
	var form reserveForm
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/detect", "error", "Please select a space to reserve.")
		return
	}
	p, _ := auth.Current(c)
	if _, err := s.store.AddAllocation(form.SpaceID, p.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			back(c, "/detect", "error", "That space does not exist.")
			return
		}
		slog.Error("reserve space", "space", form.SpaceID, "user", p.ID, lgr.Err(err))
		back(c, "/detect", "error", "Could not reserve the space.")
		return
	}
	back(c, "/allocations", "success", fmt.Sprintf("Successfully reserved space %d!", form.SpaceID))
}

// apiDetect is the JSON form of the detect page. The media kind follows
// the file extension.
func (s *Server) apiDetect(c *gin.Context) {
	fh, kind, err := uploadedFile(c, "")
	if err == nil {
		var d *detection
		d, err = s.runDetection(c, fh, kind)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{
				"kind":  d.Result.Kind,
				"count": d.Result.Count,
				"items": d.Result.Items,
				"media": d.URL(),
			})
			return
		}
	}
	status, msg := detectionStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("api detection failed", lgr.Err(err))
	}
	c.JSON(status, gin.H{"error": msg})
}
