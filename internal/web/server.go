package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/xerrors"

	"github.com/mpromonet/gin-spotdetect/internal/auth"
	"github.com/mpromonet/gin-spotdetect/internal/config"
	"github.com/mpromonet/gin-spotdetect/internal/crowd"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "register", "detect", "history", "allocations", "admin", "staff", "error"}

// Detector is the detection backend used by the upload handlers.
type Detector interface {
	DetectImage(ctx context.Context, data []byte) (*domain.DetectionResult, error)
	DetectVideo(ctx context.Context, src string, dst string) (*domain.DetectionResult, error)
}

type Server struct {
	cfg      *config.Config
	store    *store.Store
	detector Detector
	crowd    *crowd.Simulator
	router   *gin.Engine
}

func New(cfg *config.Config, st *store.Store, det Detector, sim *crowd.Simulator) (*Server, error) {
	if err := os.MkdirAll(cfg.Storage.MediaDir, 0o755); err != nil {
		return nil, xerrors.Errorf("create media directory: %w", err)
	}
	tmpl, err := loadPages()
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, store: st, detector: det, crowd: sim}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.HTMLRender = tmpl
	r.Use(gin.Recovery())
	r.Use(auth.Sessions(cfg.Session, s.principal)...)
	r.Use(lgr.GinLogger(auth.UserName))
	r.Use(static.Serve("/static", static.LocalFile(cfg.Storage.StaticDir, false)))
	r.Use(static.Serve("/media", static.LocalFile(cfg.Storage.MediaDir, false)))

	s.routes(r)
	s.router = r
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// principal reads the session account from the user table, so role changes
// and deletions apply to live sessions.
func (s *Server) principal(id uint) (auth.Principal, error) {
	u, err := s.store.UserByID(id)
	if errors.Is(err, store.ErrNotFound) {
		return auth.Principal{}, auth.ErrNoAccount
	}
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{ID: u.ID, Username: u.Username, Role: u.UserType}, nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)

	r.GET("/login", s.loginPage)
	r.POST("/login", s.login)
	r.GET("/register", s.registerPage)
	r.POST("/register", s.register)
	r.POST("/logout", s.logout)

	private := r.Group("/", auth.RequireLogin())
	private.GET("/", s.home)

	user := private.Group("/", auth.RequireRole(domain.RoleUser))
	user.GET("/detect", s.detectPage)
	user.POST("/detect", s.limitUpload(), s.detect)
	user.GET("/history", s.history)
	user.GET("/allocations", s.allocations)
	user.POST("/allocations", s.reserve)

	admin := private.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.GET("", s.adminPage)
	admin.POST("/models", s.addModel)
	admin.POST("/spaces", s.addSpace)
	admin.POST("/spaces/:id/availability", s.updateSpaceAvailability)
	admin.POST("/gates", s.addGate)
	admin.POST("/gates/:id/status", s.adminUpdateGateStatus)
	admin.POST("/staff", s.addStaff)
	admin.POST("/staff/assign", s.assignGate)

	staff := private.Group("/staff", auth.RequireRole(domain.RoleStaff))
	staff.GET("", s.staffPage)
	staff.POST("/gates/:id/status", s.staffUpdateGateStatus)

	api := r.Group("/api", auth.RequireLogin())
	api.POST("/detect", s.limitUpload(), s.apiDetect)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// home sends each role to its own dashboard.
func (s *Server) home(c *gin.Context) {
	p, _ := auth.Current(c)
	switch p.Role {
	case domain.RoleAdmin:
		c.Redirect(http.StatusSeeOther, "/admin")
	case domain.RoleStaff:
		c.Redirect(http.StatusSeeOther, "/staff")
	default:
		c.Redirect(http.StatusSeeOther, "/detect")
	}
}

// pages renders a page inside the shared layout.
type pages map[string]*template.Template

func (p pages) Instance(name string, data any) render.Render {
	return render.HTML{Template: p[name], Name: "layout", Data: data}
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
}

func loadPages() (pages, error) {
	p := pages{}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, xerrors.Errorf("parse template %s: %w", name, err)
		}
		p[name] = t
	}
	return p, nil
}

// page renders name with the session user and pending flash messages.
func (s *Server) page(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if p, ok := auth.Current(c); ok {
		data["User"] = p
	}
	data["Flashes"] = auth.Flashes(c)
	data["Page"] = name
	c.HTML(status, name, data)
}

func (s *Server) fail(c *gin.Context, status int, message string) {
	s.page(c, status, "error", gin.H{"Status": status, "Message": message})
}

// back stores a flash and redirects, the usual ending of a form POST.
func back(c *gin.Context, to, kind, message string) {
	auth.AddFlash(c, kind, message)
	c.Redirect(http.StatusSeeOther, to)
}
