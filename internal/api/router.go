package api

import (
	"time" // Cache TTL

	"storefront_ledger/internal/domain"     // Funding kinds
	"storefront_ledger/internal/funding"    // Request lifecycle
	"storefront_ledger/internal/identity"   // Identity resolution
	"storefront_ledger/internal/ledger"     // Balance ledger
	"storefront_ledger/internal/middleware" // Auth and admin gates

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// Deps are the services the HTTP layer routes to
type Deps struct {
	DB        *gorm.DB
	Redis     redis.Cmdable // Nil disables response caching
	Resolver  *identity.Resolver
	Ledger    *ledger.Ledger
	Lifecycle *funding.Lifecycle
	JWTSecret string
	JWTIssuer string
	CacheTTL  time.Duration
}

// Register mounts every route on r
func Register(r gin.IRouter, d Deps) {
	// Auth routes
	r.POST("/auth/register", RegisterHandler(d.DB))                     // Registration endpoint
	r.POST("/auth/login", LoginHandler(d.DB, d.JWTSecret, d.JWTIssuer)) // Login endpoint

	auth := middleware.JWTAuthMiddleware(d.JWTSecret, d.JWTIssuer, d.Resolver)

	// Caller-scoped routes
	user := r.Group("")
	user.Use(auth)
	user.GET("/account", GetAccountHandler(d.Resolver, d.Redis, d.CacheTTL))
	user.PATCH("/account", PatchAccountHandler(d.DB, d.Resolver, d.Redis))
	user.GET("/account/balance", GetBalanceHandler(d.Ledger))
	user.GET("/account/deposits", ListOwnFundingHandler(d.Lifecycle, domain.KindDeposit))
	user.GET("/account/withdrawals", ListOwnFundingHandler(d.Lifecycle, domain.KindWithdrawal))
	user.GET("/account/purchases", ListOwnPurchasesHandler(d.Ledger))
	user.POST("/deposits", SubmitFundingHandler(d.Lifecycle, domain.KindDeposit))
	user.POST("/withdrawals", SubmitFundingHandler(d.Lifecycle, domain.KindWithdrawal))
	user.POST("/purchases", PurchaseHandler(d.Ledger, d.Redis))

	// Admin routes, role re-checked from the database on every request
	admin := r.Group("/admin")
	admin.Use(auth, middleware.AdminOnlyMiddleware(d.Resolver))
	admin.GET("/users", ListUsersHandler(d.DB, d.Redis, d.CacheTTL))
	admin.GET("/purchases", ListPurchasesHandler(d.Ledger))
	for _, kind := range []domain.FundingKind{domain.KindDeposit, domain.KindWithdrawal} {
		base := "/" + string(kind) + "s"
		admin.GET(base, ListFundingHandler(d.Lifecycle, kind))
		admin.POST(base+"/:id/approve", ApproveFundingHandler(d.Lifecycle, kind, d.Redis))
		admin.POST(base+"/:id/reject", RejectFundingHandler(d.Lifecycle, kind))
	}
}
