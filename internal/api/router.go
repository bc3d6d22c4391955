package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/api/handlers"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/api/middleware"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/auth"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, dispatcher services.TaskDispatcher) *gin.Engine {
	// Initialize services needed by API handlers
	responder := services.NewResponder()
	queueService := services.NewQueueService(db, cfg)
	consultationService := services.NewConsultationService(db, cfg, queueService, responder, dispatcher)
	messageService := services.NewMessageService(db, cfg, dispatcher)
	ledgerService := services.NewLedgerService(db, cfg)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	consultationHandler := handlers.NewConsultationHandler(consultationService, queueService, ledgerService)
	messageHandler := handlers.NewMessageHandler(messageService)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Everything else requires authentication; role restrictions are
		// applied per route.
		authed := v1.Group("/")
		authed.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			// Requester routes
			authed.POST("/consultation", middleware.RequireRole(auth.RoleClaimRequester), consultationHandler.Submit)
			authed.POST("/consultation/:id/cancel", middleware.RequireRole(auth.RoleClaimRequester), consultationHandler.Cancel)
			authed.POST("/consultation/:id/rate", middleware.RequireRole(auth.RoleClaimRequester), consultationHandler.Rate)
			authed.GET("/my/consultations", middleware.RequireRole(auth.RoleClaimRequester), consultationHandler.MyConsultations)

			// Expert routes
			authed.GET("/queue", middleware.RequireRole(auth.RoleClaimExpert), consultationHandler.GetQueue)
			authed.POST("/consultation/:id/accept", middleware.RequireRole(auth.RoleClaimExpert), consultationHandler.Accept)
			authed.POST("/consultation/:id/complete", middleware.RequireRole(auth.RoleClaimExpert), consultationHandler.Complete)
			authed.PUT("/consultation/:id/amount", middleware.RequireRole(auth.RoleClaimExpert), consultationHandler.SetAmount)
			authed.POST("/consultation/:id/collect", middleware.RequireRole(auth.RoleClaimExpert), consultationHandler.MarkCollected)
			authed.GET("/expert/consultations", middleware.RequireRole(auth.RoleClaimExpert), consultationHandler.ExpertConsultations)
			authed.GET("/expert/earnings", middleware.RequireRole(auth.RoleClaimExpert), consultationHandler.ExpertEarnings)

			// Shared routes
			authed.GET("/consultation/:id", consultationHandler.GetByID)
			authed.GET("/consultation/:id/position", consultationHandler.GetPosition)
			authed.POST("/consultation/:id/message", messageHandler.Post)
			authed.GET("/consultation/:id/message", messageHandler.List)
			authed.POST("/consultation/:id/message/read", messageHandler.MarkRead)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine used by
// operational tooling: remote shutdown and mock-email retrieval for
// end-to-end tests.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Println("Shutdown channel already signaled or blocked.")
			}

		case "getTestEmail":
			var args []string // Expect ["template", "recipient"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [template, recipient]"})
				return
			}
			template := args[0]
			recipient := args[1]
			redisKey := fmt.Sprintf("mockemail:%s:%s", recipient, template)

			// Poll Redis briefly for the key; delivery is asynchronous.
			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ {
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey)
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
