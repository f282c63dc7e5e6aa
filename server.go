package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/middlewares"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"bitbucket.org/mmdatafocus/supplychain_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// respondError maps domain errors onto HTTP statuses. An aggregate sync failure
// is special: the carton transition committed, so the partial result goes back
// with a 502 instead of pretending nothing happened.
func respondError(c *gin.Context, err error) {
	if trackErr, ok := models.AsTrackError(err); ok {
		switch trackErr.Code {
		case models.TrackErrNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": trackErr.Message, "detail": trackErr.Detail})
		case models.TrackErrConflict:
			c.JSON(http.StatusConflict, gin.H{"error": trackErr.Message, "detail": trackErr.Detail})
		case models.TrackErrInvalidInput:
			c.JSON(http.StatusBadRequest, gin.H{"error": trackErr.Message, "detail": trackErr.Detail})
		case models.TrackErrAggregateSyncFailure:
			c.JSON(http.StatusBadGateway, gin.H{"error": trackErr.Message, "detail": trackErr.Detail})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": trackErr.Message})
		}
		return
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func generateCartonsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCartonGeneration
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		cartons, err := models.GenerateCartons(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"cartons": cartons, "count": len(cartons)})
	}
}

func applyScanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.NewScan
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		result, err := workflow.ApplyScan(c.Request.Context(), &input)
		if err != nil {
			if models.IsAggregateSyncFailure(err) && result != nil {
				trackErr, _ := models.AsTrackError(err)
				c.JSON(http.StatusBadGateway, gin.H{
					"error":  trackErr.Message,
					"detail": trackErr.Detail,
					"carton": result.Carton,
				})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func placeOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		order, summaries, err := workflow.PlaceOrder(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"order": order, "demand": summaries})
	}
}

func completeBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch id"})
			return
		}
		batch, err := workflow.CompleteShipmentBatch(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func resyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		// Redis lock is a best-effort optimization to keep concurrent sweeps from
		// piling up. Reliability must not depend on Redis: the sweep also
		// serializes per aggregate key via MySQL advisory locks.
		var lock *redislock.Lock
		if redisLock := config.GetRedisLock(); redisLock != nil {
			obtained, err := redisLock.Obtain(c.Request.Context(), "lock:resync-sweep", 30*time.Second, nil)
			if err == redislock.ErrNotObtained {
				c.JSON(http.StatusConflict, gin.H{"error": "a resync sweep is already running"})
				return
			} else if err != nil {
				logger.WithFields(logrus.Fields{
					"field": "resyncHandler",
				}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
			} else {
				lock = obtained
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field": "resyncHandler",
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		healed, err := workflow.ProcessPendingResyncs(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"healed": healed})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func registerCatalogRoutes(api *gin.RouterGroup) {
	api.POST("/articles", func(c *gin.Context) {
		var input models.NewArticle
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		article, err := models.CreateArticle(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, article)
	})
	api.PUT("/articles/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewArticle
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		article, err := models.UpdateArticle(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, article)
	})
	api.DELETE("/articles/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		article, err := models.DeleteArticle(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, article)
	})
	api.GET("/articles/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		article, err := models.GetArticle(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, article)
	})
	api.GET("/articles", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		articles, err := models.ListArticles(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, articles)
	})

	api.POST("/distributors", func(c *gin.Context) {
		var input models.NewDistributor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		distributor, err := models.CreateDistributor(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, distributor)
	})
	api.PUT("/distributors/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewDistributor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		distributor, err := models.UpdateDistributor(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, distributor)
	})
	api.DELETE("/distributors/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		distributor, err := models.DeleteDistributor(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, distributor)
	})
	api.GET("/distributors", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		distributors, err := models.ListDistributors(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, distributors)
	})

	api.POST("/warehouses", func(c *gin.Context) {
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		warehouse, err := models.CreateWarehouse(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, warehouse)
	})
	api.PUT("/warehouses/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		warehouse, err := models.UpdateWarehouse(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	})
	api.DELETE("/warehouses/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		warehouse, err := models.DeleteWarehouse(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	})
	api.GET("/warehouses", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		warehouses, err := models.ListWarehouses(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouses)
	})
}

func registerTrackingRoutes(api *gin.RouterGroup) {
	api.POST("/cartons/generate", generateCartonsHandler())
	api.POST("/scans", applyScanHandler())

	api.GET("/cartons", func(c *gin.Context) {
		var articleId *int
		if v, err := strconv.Atoi(c.Query("article_id")); err == nil && v > 0 {
			articleId = &v
		}
		var status *models.CartonStatus
		if v := c.Query("status"); v != "" {
			parsed, err := models.ParseCartonStatus(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid carton status"})
				return
			}
			status = &parsed
		}
		cartons, err := models.ListCartons(c.Request.Context(), articleId, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cartons)
	})
	api.GET("/cartons/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		carton, err := models.GetCarton(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, carton)
	})
	api.GET("/cartons/:id/scans", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		scans, err := models.ListCartonScans(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, scans)
	})
	api.GET("/cartons/serial/:serial", func(c *gin.Context) {
		carton, err := models.GetCartonBySerial(c.Request.Context(), c.Param("serial"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, carton)
	})

	api.GET("/inventories", func(c *gin.Context) {
		summaries, err := models.ListInventorySummaries(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summaries)
	})
	api.GET("/inventories/:articleId", func(c *gin.Context) {
		articleId, err := strconv.Atoi(c.Param("articleId"))
		if err != nil || articleId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
			return
		}
		summary, err := models.GetInventorySummary(c.Request.Context(), articleId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.GET("/demand", func(c *gin.Context) {
		summaries, err := models.ListDemandSummaries(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summaries)
	})
	api.GET("/demand/:articleId", func(c *gin.Context) {
		articleId, err := strconv.Atoi(c.Param("articleId"))
		if err != nil || articleId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
			return
		}
		summary, err := models.GetDemandSummary(c.Request.Context(), articleId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.POST("/batches/:id/complete", completeBatchHandler())
	api.GET("/batches", func(c *gin.Context) {
		var distributorId *int
		if v, err := strconv.Atoi(c.Query("distributor_id")); err == nil && v > 0 {
			distributorId = &v
		}
		var status *models.BatchStatus
		if v := c.Query("status"); v != "" {
			s := models.BatchStatus(v)
			status = &s
		}
		batches, err := models.ListShipmentBatches(c.Request.Context(), distributorId, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, batches)
	})
	api.GET("/batches/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		batch, err := models.GetShipmentBatch(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	})
	api.GET("/batches/:id/items", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		items, err := models.ListShipmentBatchItems(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})

	api.POST("/orders", placeOrderHandler())
	api.GET("/orders", func(c *gin.Context) {
		var distributorId *int
		if v, err := strconv.Atoi(c.Query("distributor_id")); err == nil && v > 0 {
			distributorId = &v
		}
		orders, err := models.ListDistributorOrders(c.Request.Context(), distributorId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	})
	api.GET("/orders/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		order, err := models.GetDistributorOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(middlewares.CorrelationIdMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness. Redis is optional.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitCommaList(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Business-Id", "X-User-Name")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.Use(middlewares.BusinessContextMiddleware())
	registerCatalogRoutes(api)
	registerTrackingRoutes(api)

	// Ops tooling: sweep PENDING aggregate resync markers.
	r.POST("/internal/resync/process", resyncHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
