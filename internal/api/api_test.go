package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront_ledger/internal/api"
	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"
	"storefront_ledger/internal/funding"
	"storefront_ledger/internal/identity"
	"storefront_ledger/internal/ledger"
	"storefront_ledger/internal/testutil"
	"storefront_ledger/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "test-secret"

type harness struct {
	t      *testing.T
	router *gin.Engine
	gdb    *gorm.DB
	mr     *miniredis.Miniredis
	events *testutil.RecordingEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rec := &testutil.RecordingEmitter{}
	resolver := identity.NewResolver(gdb)
	l := ledger.New(db.NewRunner(gdb, 0), rec)

	r := gin.New()
	api.Register(r, api.Deps{
		DB:        gdb,
		Redis:     rdb,
		Resolver:  resolver,
		Ledger:    l,
		Lifecycle: funding.New(l, resolver, rec),
		JWTSecret: secret,
		CacheTTL:  time.Minute,
	})
	return &harness{t: t, router: r, gdb: gdb, mr: mr, events: rec}
}

func (h *harness) token(acct domain.Account) string {
	h.t.Helper()
	tok, err := utils.GenerateJWT(acct.ID, acct.UID(), acct.Email, secret, "")
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestRegisterLoginAndProfile(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "Shopper@Example.com", "password": "correct-horse", "display_name": "Shopper",
	})
	require.Equal(t, http.StatusCreated, code)

	code, _ = h.do(http.MethodPost, "/auth/register", "", map[string]string{"email": "shopper@example.com", "password": "another-pass"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = h.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "shopper@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := h.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "shopper@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, code)
	tok := body["token"].(string)

	code, body = h.do(http.MethodGet, "/account", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["cached"])
	acct := body["account"].(map[string]any)
	assert.Equal(t, "shopper@example.com", acct["email"])
	assert.Equal(t, float64(1), acct["login_count"])
	assert.NotContains(t, acct, "password")

	code, body = h.do(http.MethodGet, "/account", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["cached"])

	code, body = h.do(http.MethodGet, "/account/balance", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0.00", body["balance"])
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	h := newHarness(t)
	alice := testutil.SeedAccount(t, h.gdb, "alice@example.com", 0, domain.RoleUser)

	code, _ := h.do(http.MethodGet, "/account/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = h.do(http.MethodGet, "/account/balance", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// Numeric id paired with someone else's email
	forged, err := utils.GenerateJWT(alice.ID, "", "mallory@example.com", secret, "")
	require.NoError(t, err)
	code, _ = h.do(http.MethodGet, "/account/balance", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAuth_FederatedTokenProvisionsOnce(t *testing.T) {
	h := newHarness(t)
	tok, err := utils.GenerateJWT(0, "provider-uid-1", "fed@example.com", secret, "")
	require.NoError(t, err)

	code, first := h.do(http.MethodGet, "/account", tok, nil)
	require.Equal(t, http.StatusOK, code)
	code, second := h.do(http.MethodGet, "/account/balance", tok, nil)
	require.Equal(t, http.StatusOK, code)

	acct := first["account"].(map[string]any)
	assert.Equal(t, "provider-uid-1", acct["external_uid"])
	assert.Equal(t, acct["id"], second["account_id"])

	var count int64
	require.NoError(t, h.gdb.Model(&domain.Account{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPatchAccount_ProfileFieldsOnly(t *testing.T) {
	h := newHarness(t)
	acct := testutil.SeedAccount(t, h.gdb, "p@example.com", 500, domain.RoleUser)
	tok := h.token(acct)

	code, _ := h.do(http.MethodGet, "/account", tok, nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, h.mr.Exists(utils.AccountCacheKey(acct.ID)))

	code, body := h.do(http.MethodPatch, "/account", tok, map[string]any{"display_name": "New Name", "avatar_url": "https://cdn/x.png"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "New Name", body["account"].(map[string]any)["display_name"])
	assert.False(t, h.mr.Exists(utils.AccountCacheKey(acct.ID)))

	for _, patch := range []map[string]any{{"balance": "999999"}, {"role": "admin"}, {"display_name": 7}} {
		code, _ = h.do(http.MethodPatch, "/account", tok, patch)
		assert.Equal(t, http.StatusBadRequest, code, patch)
	}
	assert.Equal(t, "500.00", testutil.Balance(t, h.gdb, acct.ID).StringFixed(2))
}

func TestDepositApprovalFlow(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedAccount(t, h.gdb, "user@example.com", 0, domain.RoleUser)
	admin := testutil.SeedAccount(t, h.gdb, "admin@example.com", 0, domain.RoleAdmin)
	userTok, adminTok := h.token(user), h.token(admin)

	code, body := h.do(http.MethodPost, "/deposits", userTok, map[string]any{"amount": "20000", "external_reference": "BANK-1"})
	require.Equal(t, http.StatusCreated, code)
	reqID := uint(body["request"].(map[string]any)["id"].(float64))
	approve := fmt.Sprintf("/admin/deposits/%d/approve", reqID)

	// A regular account cannot reach admin routes
	code, _ = h.do(http.MethodPost, approve, userTok, map[string]any{"amount": "20000", "account": user.ID, "email": user.Email})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(http.MethodPost, approve, adminTok, map[string]any{"amount": "25000", "account": user.ID, "email": user.Email})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = h.do(http.MethodGet, "/admin/deposits?status=pending", adminTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])

	code, body = h.do(http.MethodPost, approve, adminTok, map[string]any{"amount": 20000, "account": user.ID, "email": user.Email})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "20000.00", body["new_balance"])

	code, body = h.do(http.MethodPost, approve, adminTok, map[string]any{"amount": 20000, "account": user.ID, "email": user.Email})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, true, body["already_processed"])

	code, body = h.do(http.MethodGet, "/account/deposits", userTok, nil)
	require.Equal(t, http.StatusOK, code)
	list := body["requests"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "approved", list[0].(map[string]any)["status"])
	assert.Equal(t, "20000.00", testutil.Balance(t, h.gdb, user.ID).StringFixed(2))
}

func TestWithdrawal_RejectAndInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedAccount(t, h.gdb, "user@example.com", 1000, domain.RoleUser)
	admin := testutil.SeedAccount(t, h.gdb, "admin@example.com", 0, domain.RoleAdmin)
	userTok, adminTok := h.token(user), h.token(admin)

	code, body := h.do(http.MethodPost, "/withdrawals", userTok, map[string]any{"amount": "5000"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "1000.00", body["available"])

	code, _ = h.do(http.MethodPost, "/withdrawals", userTok, map[string]any{"amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(http.MethodPost, "/withdrawals", userTok, map[string]any{"amount": "400", "method": "bank"})
	require.Equal(t, http.StatusCreated, code)
	reqID := uint(body["request"].(map[string]any)["id"].(float64))

	code, _ = h.do(http.MethodPost, fmt.Sprintf("/admin/withdrawals/%d/reject", reqID), adminTok, nil)
	require.Equal(t, http.StatusOK, code)
	code, body = h.do(http.MethodPost, fmt.Sprintf("/admin/withdrawals/%d/reject", reqID), adminTok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, true, body["already_processed"])

	code, _ = h.do(http.MethodPost, "/admin/withdrawals/999/reject", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "1000.00", testutil.Balance(t, h.gdb, user.ID).StringFixed(2))
}

func TestPurchaseEndpoints(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedAccount(t, h.gdb, "buyer@example.com", 100000, domain.RoleUser)
	admin := testutil.SeedAccount(t, h.gdb, "admin@example.com", 0, domain.RoleAdmin)
	product := testutil.SeedProduct(t, h.gdb, "theme", 30000)
	tok := h.token(user)

	code, body := h.do(http.MethodPost, "/purchases", tok, map[string]any{"product_id": product.ID, "amount": "30000"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "70000.00", body["new_balance"])

	code, body = h.do(http.MethodPost, "/purchases", tok, map[string]any{"product_id": product.ID, "amount": "30000"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, true, body["already_processed"])

	code, _ = h.do(http.MethodPost, "/purchases", tok, map[string]any{"product_id": 4242, "amount": "1"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = h.do(http.MethodGet, "/account/purchases", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["purchases"], 1)

	code, body = h.do(http.MethodGet, "/admin/purchases", h.token(admin), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])
}

func TestAdminUsers_CachedAndInvalidated(t *testing.T) {
	h := newHarness(t)
	admin := testutil.SeedAccount(t, h.gdb, "admin@example.com", 0, domain.RoleAdmin)
	user := testutil.SeedAccount(t, h.gdb, "user@example.com", 0, domain.RoleUser)
	adminTok := h.token(admin)

	code, body := h.do(http.MethodGet, "/admin/users?page=1&page_size=10", adminTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, float64(2), body["total"])

	code, body = h.do(http.MethodGet, "/admin/users?page=1&page_size=10", adminTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["cached"])

	// A balance change drops the cached listing
	code, body = h.do(http.MethodPost, "/deposits", h.token(user), map[string]any{"amount": "10"})
	require.Equal(t, http.StatusCreated, code)
	id := uint(body["request"].(map[string]any)["id"].(float64))
	code, _ = h.do(http.MethodPost, fmt.Sprintf("/admin/deposits/%d/approve", id), adminTok,
		map[string]any{"amount": "10", "account": "some-provider-uid", "email": user.Email})
	require.Equal(t, http.StatusOK, code)

	code, body = h.do(http.MethodGet, "/admin/users?page=1&page_size=10", adminTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["cached"])
}
