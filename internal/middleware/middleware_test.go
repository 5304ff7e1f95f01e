package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"storefront_ledger/internal/domain"
	"storefront_ledger/internal/identity"
	"storefront_ledger/internal/middleware"
	"storefront_ledger/internal/testutil"
	"storefront_ledger/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "mw-secret"

func newRouter(t *testing.T, gdb *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	resolver := identity.NewResolver(gdb)

	r := gin.New()
	r.Use(middleware.JWTAuthMiddleware(secret, "storefront", resolver))
	whoami := func(c *gin.Context) {
		id, ok := middleware.AccountID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": id, "email": c.GetString(middleware.EmailKey)})
	}
	r.GET("/me", whoami)
	r.GET("/admin", middleware.AdminOnlyMiddleware(resolver), whoami)
	return r
}

func call(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, id uint, uid, email, issuer string) string {
	t.Helper()
	tok, err := utils.GenerateJWT(id, uid, email, secret, issuer)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestJWTAuth_LocalToken(t *testing.T) {
	gdb := testutil.NewDB(t)
	acct := testutil.SeedAccount(t, gdb, "local@example.com", 0, domain.RoleUser)
	r := newRouter(t, gdb)

	w := call(r, "/me", bearer(t, acct.ID, "", "Local@Example.com", "storefront"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"email":"local@example.com"}`, w.Body.String())
}

func TestJWTAuth_Rejections(t *testing.T) {
	gdb := testutil.NewDB(t)
	acct := testutil.SeedAccount(t, gdb, "local@example.com", 0, domain.RoleUser)
	r := newRouter(t, gdb)

	cases := map[string]string{
		"missing header":   "",
		"basic scheme":     "Basic Zm9vOmJhcg==",
		"garbage token":    "Bearer abc.def.ghi",
		"wrong issuer":     bearer(t, acct.ID, "", acct.Email, "elsewhere"),
		"email mismatch":   bearer(t, acct.ID, "", "other@example.com", "storefront"),
		"unknown local id": bearer(t, 9999, "", "ghost@example.com", "storefront"),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := call(r, "/me", header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestJWTAuth_FederatedTokenLinksExistingEmail(t *testing.T) {
	gdb := testutil.NewDB(t)
	acct := testutil.SeedAccount(t, gdb, "fed@example.com", 0, domain.RoleUser)
	r := newRouter(t, gdb)

	w := call(r, "/me", bearer(t, 0, "uid-abc", "fed@example.com", "storefront"))
	require.Equal(t, http.StatusOK, w.Code)

	var linked domain.Account
	require.NoError(t, gdb.First(&linked, acct.ID).Error)
	assert.Equal(t, "uid-abc", linked.UID())

	// Another provider identity cannot take over the linked email
	w = call(r, "/me", bearer(t, 0, "uid-other", "fed@example.com", "storefront"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_NumericFederatedSubject(t *testing.T) {
	gdb := testutil.NewDB(t)
	victim := testutil.SeedAccount(t, gdb, "victim@example.com", 0, domain.RoleUser)
	bound := testutil.SeedFederatedAccount(t, gdb, "777", "owner@example.com", 0)
	r := newRouter(t, gdb)

	sub := strconv.FormatUint(uint64(victim.ID), 10)
	w := call(r, "/me", bearer(t, 0, sub, "attacker@evil.com", "storefront"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "victim@example.com")

	var body struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEqual(t, victim.ID, body.ID)

	// A numeric subject already bound to another email gets no session
	w = call(r, "/me", bearer(t, 0, "777", "attacker@evil.com", "storefront"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, "/me", bearer(t, 0, "777", bound.Email, "storefront"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, bound.ID, body.ID)
}

func TestAdminOnly(t *testing.T) {
	gdb := testutil.NewDB(t)
	user := testutil.SeedAccount(t, gdb, "user@example.com", 0, domain.RoleUser)
	admin := testutil.SeedAccount(t, gdb, "admin@example.com", 0, domain.RoleAdmin)
	r := newRouter(t, gdb)

	w := call(r, "/admin", bearer(t, user.ID, "", user.Email, "storefront"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(r, "/admin", bearer(t, admin.ID, "", admin.Email, "storefront"))
	assert.Equal(t, http.StatusOK, w.Code)

	// Demotion takes effect on the next request, tokens carry no role
	require.NoError(t, gdb.Model(&domain.Account{}).Where("id = ?", admin.ID).Update("role", domain.RoleUser).Error)
	w = call(r, "/admin", bearer(t, admin.ID, "", admin.Email, "storefront"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
