package auth

import (
	"encoding/gob"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/xerrors"

	"github.com/mpromonet/gin-spotdetect/internal/config"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
)

const (
	keyUserID = "user_id"

	principalKey = "auth.principal"
)

// ErrNoAccount is returned by a Resolver when the session user is gone.
var ErrNoAccount = errors.New("account no longer exists")

// Resolver loads the current state of account id.
type Resolver func(id uint) (Principal, error)

// Flash slices go through the gob cookie codec.
func init() {
	gob.Register([]interface{}{})
}

// Principal is the logged in account attached to a request.
type Principal struct {
	ID       uint
	Username string
	Role     domain.Role
}

// Sessions installs the cookie backed session middleware followed by the
// principal lookup. The cookie only carries the account id; name and role
// are read through resolve on every request.
func Sessions(cfg config.SessionConfig, resolve Resolver) gin.HandlersChain {
	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return gin.HandlersChain{sessions.Sessions(cfg.Name, store), loadPrincipal(resolve)}
}

func loadPrincipal(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		id, ok := s.Get(keyUserID).(uint)
		if !ok || id == 0 {
			c.Next()
			return
		}
		p, err := resolve(id)
		switch {
		case errors.Is(err, ErrNoAccount):
			slog.Warn("session for unknown account dropped", "user_id", id)
			s.Clear()
			_ = s.Save()
		case err != nil:
			slog.Error("session lookup", "user_id", id, lgr.Err(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		default:
			p.ID = id
			c.Set(principalKey, p)
		}
		c.Next()
	}
}

func Login(c *gin.Context, p Principal) error {
	s := sessions.Default(c)
	s.Clear()
	s.Set(keyUserID, p.ID)
	if err := s.Save(); err != nil {
		return xerrors.Errorf("save session: %w", err)
	}
	c.Set(principalKey, p)
	return nil
}

func Logout(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := s.Save(); err != nil {
		return xerrors.Errorf("clear session: %w", err)
	}
	return nil
}

// Current returns the principal resolved for this request, if any.
func Current(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok && p.ID != 0
}

// UserName is used by the access log.
func UserName(c *gin.Context) string {
	p, _ := Current(c)
	return p.Username
}

func isAPI(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}

// RequireLogin sends anonymous browsers to the login page and rejects
// anonymous API calls.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Current(c); ok {
			c.Next()
			return
		}
		if isAPI(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		c.Redirect(http.StatusSeeOther, "/login")
		c.Abort()
	}
}

// RequireRole must run after RequireLogin.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Current(c)
		if ok {
			for _, r := range roles {
				if p.Role == r {
					c.Next()
					return
				}
			}
		}
		if isAPI(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.String(http.StatusForbidden, "forbidden")
		c.Abort()
	}
}

// Flash is a one shot message shown on the next rendered page.
type Flash struct {
	Kind    string // success, error, info, warning
	Message string
}

func AddFlash(c *gin.Context, kind, message string) {
	s := sessions.Default(c)
	s.AddFlash(message, kind)
	_ = s.Save()
}

func Flashes(c *gin.Context) []Flash {
	s := sessions.Default(c)
	var out []Flash
	for _, kind := range []string{"success", "info", "warning", "error"} {
		for _, m := range s.Flashes(kind) {
			if msg, ok := m.(string); ok {
				out = append(out, Flash{Kind: kind, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		_ = s.Save()
	}
	return out
}
