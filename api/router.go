// Package api contains all endpoints available
package api

import (
	"fmt"
	"time"

	"polo74/file-api/db"
	"polo74/file-api/internal/notify"
	"polo74/file-api/internal/queue"
	"polo74/file-api/internal/storage"
	"polo74/file-api/middleware"
	"polo74/file-api/pkg/security"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var store = persist.NewMemoryStore(time.Minute)

type API struct {
	DB     *gorm.DB
	Router *gin.Engine
	Argon  *security.ArgonHash
	Store  storage.ObjectStore
	Queue  queue.Enqueuer
	Hub    *notify.Hub
}

func NewRouter() (*API, error) {
	a := &API{
		Hub: notify.NewHub(),
	}

	db, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}
	a.DB = db

	makeLogger()

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Range"},
			ExposeHeaders:    []string{"Content-Length", "Content-Range", "Accept-Ranges"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	a.Router.MaxMultipartMemory = 5 << 20

	jwt := middleware.NewJWTMiddleware(db)
	optionalJWT := middleware.NewOptionalJWTMiddleware()
	maxUploadSize := viper.GetInt64("upload.max_size")

	general := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{RequestsPerSecond: 10, Burst: 30})
	uploads := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{RequestsPerSecond: 1, Burst: 5})
	deletes := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{RequestsPerSecond: 1, Burst: 10})

	main := router.Group("/api", general)
	{
		// GET /api/heartbeat		-> Used to check if the server is alive
		main.GET("/heartbeat", cacheFor(5), a.Heartbeat)

		// GET /api/events		-> Websocket feed of file status updates
		main.GET("/events", a.FileEvents)
	}

	users := main.Group("/users", middleware.BodySizeLimiter(1<<20))
	{
		// POST /api/users 		-> Registers a new user
		users.POST("", a.UserRegister)

		// POST /api/users/login 	-> Logs in a user and returns a JWT token
		users.POST("/login", a.UserLogin)
	}

	files := main.Group("/files")
	{
		// POST /api/files		-> Stages an upload and queues it for processing
		files.POST("", optionalJWT, uploads, middleware.BodySizeLimiter(maxUploadSize+(1<<20)), a.FileUpload)

		// GET /api/files/bulk		-> Returns the caller's files in bulk
		files.GET("/bulk", jwt, a.FileFetchBulk)

		// GET /api/files/:uuid		-> Returns a file's metadata record
		files.GET("/:uuid", optionalJWT, a.FileFetch)

		// GET /api/files/:uuid/content	-> Streams the processed file, with Range support
		files.GET("/:uuid/content", optionalJWT, a.FileServe)

		// DELETE /api/files/:uuid	-> Soft deletes a file
		files.DELETE("/:uuid", optionalJWT, deletes, a.FileDelete)
	}

	a.Argon = security.New()

	s3, err := storage.NewS3()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store client, %w", err)
	}
	a.Store = s3

	a.Queue = queue.NewClient()

	return a, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}
