package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpromonet/gin-spotdetect/internal/config"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
)

func TestPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secret"))
	assert.False(t, CheckPassword(hash, "Secret"))

	_, err = HashPassword("abc")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

// accounts stands in for the user table.
type accounts map[uint]Principal

func (a accounts) resolve(id uint) (Principal, error) {
	p, ok := a[id]
	if !ok {
		return Principal{}, ErrNoAccount
	}
	return p, nil
}

func newRouter(users accounts) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Default().Session
	cfg.Secret = "0123456789abcdef-test"

	r := gin.New()
	r.Use(Sessions(cfg, users.resolve)...)
	r.POST("/login/:role", func(c *gin.Context) {
		p := Principal{ID: 7, Username: "alice", Role: domain.Role(c.Param("role"))}
		users[p.ID] = p
		if err := Login(c, p); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		AddFlash(c, "success", "welcome")
		c.Status(http.StatusNoContent)
	})
	r.POST("/logout", func(c *gin.Context) {
		_ = Logout(c)
		c.Status(http.StatusNoContent)
	})
	r.GET("/flashes", func(c *gin.Context) { c.JSON(http.StatusOK, Flashes(c)) })

	private := r.Group("/", RequireLogin())
	private.GET("/me", func(c *gin.Context) {
		p, _ := Current(c)
		c.String(http.StatusOK, p.Username+":"+string(p.Role))
	})
	private.GET("/admin", RequireRole(domain.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	private.GET("/api/me", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r http.Handler, method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// cookies keeps the last Set-Cookie per name, as a browser would.
func cookies(w *httptest.ResponseRecorder) []*http.Cookie {
	byName := map[string]*http.Cookie{}
	var order []string
	for _, ck := range w.Result().Cookies() {
		if _, seen := byName[ck.Name]; !seen {
			order = append(order, ck.Name)
		}
		byName[ck.Name] = ck
	}
	out := make([]*http.Cookie, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func TestRequireLogin(t *testing.T) {
	r := newRouter(accounts{})

	w := do(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = do(r, http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	login := do(r, http.MethodPost, "/login/user", nil)
	require.Equal(t, http.StatusNoContent, login.Code)
	jar := cookies(login)
	require.NotEmpty(t, jar)

	w = do(r, http.MethodGet, "/me", jar)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice:user", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newRouter(accounts{})

	user := cookies(do(r, http.MethodPost, "/login/user", nil))
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", user).Code)

	admin := cookies(do(r, http.MethodPost, "/login/admin", nil))
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", admin).Code)
}

func TestFlashesAreConsumed(t *testing.T) {
	r := newRouter(accounts{})

	jar := cookies(do(r, http.MethodPost, "/login/user", nil))
	w := do(r, http.MethodGet, "/flashes", jar)
	assert.Contains(t, w.Body.String(), "welcome")

	w = do(r, http.MethodGet, "/flashes", cookies(w))
	assert.Equal(t, "null", w.Body.String())
}

func TestLogout(t *testing.T) {
	r := newRouter(accounts{})

	jar := cookies(do(r, http.MethodPost, "/login/user", nil))
	out := do(r, http.MethodPost, "/logout", jar)

	var cleared []*http.Cookie
	for _, ck := range out.Result().Cookies() {
		if ck.MaxAge < 0 {
			cleared = append(cleared, ck)
		}
	}
	assert.NotEmpty(t, cleared, "session cookie expired")
}

func TestRoleIsReadOnEveryRequest(t *testing.T) {
	users := accounts{}
	r := newRouter(users)

	jar := cookies(do(r, http.MethodPost, "/login/user", nil))
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", jar).Code)

	users[7] = Principal{Username: "alice", Role: domain.RoleAdmin}
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", jar).Code, "promotion applies without a new login")

	w := do(r, http.MethodGet, "/me", jar)
	assert.Equal(t, "alice:admin", w.Body.String())
}

func TestSessionOfDeletedAccount(t *testing.T) {
	users := accounts{}
	r := newRouter(users)

	jar := cookies(do(r, http.MethodPost, "/login/admin", nil))
	delete(users, 7)

	w := do(r, http.MethodGet, "/admin", jar)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = do(r, http.MethodGet, "/api/me", jar)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var cleared bool
	for _, ck := range w.Result().Cookies() {
		cleared = cleared || ck.Name == "spotdetect"
	}
	assert.True(t, cleared, "session rewritten without the account")
}

func TestSessionLookupFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default().Session
	cfg.Secret = "0123456789abcdef-test"
	failing := func(uint) (Principal, error) { return Principal{}, assert.AnError }

	r := gin.New()
	r.Use(Sessions(cfg, failing)...)
	r.POST("/login", func(c *gin.Context) {
		_ = Login(c, Principal{ID: 1, Username: "bob", Role: domain.RoleUser})
		c.Status(http.StatusNoContent)
	})
	r.GET("/me", RequireLogin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	jar := cookies(do(r, http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/me", jar).Code)
}
