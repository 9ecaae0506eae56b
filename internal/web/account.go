package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mpromonet/gin-spotdetect/internal/auth"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/store"
)

type credentials struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func (s *Server) loginPage(c *gin.Context) {
	if _, ok := auth.Current(c); ok {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.page(c, http.StatusOK, "login", nil)
}

func (s *Server) login(c *gin.Context) {
	var form credentials
	if err := c.ShouldBind(&form); err != nil {
		s.page(c, http.StatusBadRequest, "login", gin.H{"Error": "Please enter a username and a password."})
		return
	}
	u, err := s.store.Authenticate(form.Username, form.Password)
	if err != nil {
		if !errors.Is(err, store.ErrInvalidCredentials) {
			slog.Error("authenticate", "username", form.Username, lgr.Err(err))
		}
		s.page(c, http.StatusUnauthorized, "login", gin.H{"Error": "Invalid username or password.", "Username": form.Username})
		return
	}
	if err := auth.Login(c, auth.Principal{ID: u.ID, Username: u.Username, Role: u.UserType}); err != nil {
		slog.Error("login", "username", u.Username, lgr.Err(err))
		s.fail(c, http.StatusInternalServerError, "Could not start a session.")
		return
	}
	slog.Info("user logged in", "username", u.Username, "role", u.UserType)
	back(c, "/", "success", "Welcome "+u.Username+" 👋")
}

func (s *Server) registerPage(c *gin.Context) {
	s.page(c, http.StatusOK, "register", nil)
}

// register always creates a plain user account. Staff and admins are
// promoted from the admin view.
func (s *Server) register(c *gin.Context) {
	var form credentials
	if err := c.ShouldBind(&form); err != nil {
		back(c, "/register", "error", "Please enter a username and a password.")
		return
	}
	_, err := s.store.CreateUser(form.Username, form.Password, domain.RoleUser)
	switch {
	case errors.Is(err, store.ErrUserExists):
		back(c, "/register", "error", "Username already exists.")
	case errors.Is(err, store.ErrInvalidValue):
		back(c, "/register", "error", "Password must be at least 4 characters.")
	case err != nil:
		slog.Error("register", "username", form.Username, lgr.Err(err))
		back(c, "/register", "error", "Could not create the account.")
	default:
		back(c, "/login", "success", "Account created successfully! You can now log in.")
	}
}

func (s *Server) logout(c *gin.Context) {
	if err := auth.Logout(c); err != nil {
		slog.Warn("logout", lgr.Err(err))
	}
	c.Redirect(http.StatusSeeOther, "/login")
}
