package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"checkmate/auth"
	dbt "checkmate/db/db"
)

const (
	contextKeyUserID   = "user_id"
	contextKeyUsername = "username"
)

func CorsConfig() cors.Config {
	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConf.AllowCredentials = true
	corsConf.MaxAge = 1 * 3600 // 1 hours
	return corsConf
}

func limiterMiddleWare(requestsPerMinute int) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  int64(requestsPerMinute),
	}
	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance)
}

// AuthMiddleware validates the bearer token and stores the caller's
// identity in the gin context.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrMissingToken.Error()})
			return
		}

		claims, err := jwtManager.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
			return
		}

		c.Set(contextKeyUserID, claims.UserID)
		c.Set(contextKeyUsername, claims.Username)
		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header, or from
// the token query parameter for websocket clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

func currentUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(contextKeyUserID)
	userID, _ := id.(uuid.UUID)
	return userID
}

// TripDataLoaderInjectionMiddleware gives each request its own batched
// loader so caching never crosses requests.
func TripDataLoaderInjectionMiddleware(store dbt.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := dbt.NewTripDataLoader(store)
		c.Set(string(dbt.DataLoaderKeyTrip), loader)
		c.Next()
	}
}

func tripDataLoader(c *gin.Context) *dbt.TripDataLoader {
	value, ok := c.Get(string(dbt.DataLoaderKeyTrip))
	if !ok {
		return nil
	}
	loader, _ := value.(*dbt.TripDataLoader)
	return loader
}

func setupMiddlewares(r *gin.Engine, cfg ServiceConfig) {
	if cfg.RateLimitPerMin > 0 {
		r.Use(limiterMiddleWare(cfg.RateLimitPerMin))
	}
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(metricsMiddleware())
	r.Use(cors.New(CorsConfig()))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(secure.New(secure.Config{
		STSSeconds:           31536000, // 1 year
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
	}))
}
