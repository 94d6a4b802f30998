package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/attendance"
	"github.com/campuspass/nfc_backend_v1/internal/config"
	"github.com/campuspass/nfc_backend_v1/internal/controllers"
	"github.com/campuspass/nfc_backend_v1/internal/middleware"
	"github.com/campuspass/nfc_backend_v1/internal/ws"
)

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, hub *ws.FeedHub) {
	expiresMins, err := time.ParseDuration(cfg.JWTExpiresIn + "m")
	if err != nil || expiresMins == 0 {
		expiresMins = 60 * time.Minute
	}

	authCtrl := &controllers.AuthController{DB: db, JWTSecret: cfg.JWTSecret, ExpiresIn: expiresMins}
	syncCtrl := &controllers.SyncController{
		DB:  db,
		Cfg: cfg,
		Rec: &attendance.Reconciler{OverrideSticky: cfg.OverrideSticky},
		Hub: hub,
	}
	readerCtrl := &controllers.ReaderController{DB: db}
	attendanceCtrl := &controllers.AttendanceController{DB: db}
	logCtrl := &controllers.LogController{DB: db}
	ruleCtrl := &controllers.AccessRuleController{DB: db}
	emergencyCtrl := &controllers.EmergencyController{DB: db}

	// Device endpoints: HMAC-authenticated, no JWT.
	device := r.Group("/device", middleware.DeviceAuth(db, middleware.DeviceAuthConfig{
		ReplayWindowSeconds: cfg.ReplayWindowSeconds,
	}))
	{
		device.POST("/sync", syncCtrl.Sync)
	}

	// Public
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authCtrl.Login)
	}

	// Protected
	authMW := middleware.AuthMiddleware(db, middleware.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		JWTExpiresIn: expiresMins,
	})
	api := r.Group("/api/v1", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)
		api.POST("/auth/logout", authCtrl.Logout)

		// Admin-only
		admin := api.Group("/admin", middleware.RequireRoles("admin"))
		{
			admin.POST("/users", authCtrl.Register)

			admin.GET("/readers", readerCtrl.List)
			admin.POST("/readers", readerCtrl.Provision)
			admin.GET("/readers/:id", readerCtrl.Get)
			admin.PUT("/readers/:id/config", readerCtrl.UpdateConfig)
			admin.POST("/readers/:id/deactivate", readerCtrl.Deactivate)
			admin.POST("/readers/:id/reactivate", readerCtrl.Reactivate)
			admin.POST("/readers/:id/commands", readerCtrl.EnqueueCommand)
			admin.GET("/readers/:id/commands", readerCtrl.ListCommands)

			admin.GET("/access-rules", ruleCtrl.List)
			admin.POST("/access-rules", ruleCtrl.Create)
			admin.GET("/access-rules/:id", ruleCtrl.Get)
			admin.PUT("/access-rules/:id", ruleCtrl.Update)
			admin.DELETE("/access-rules/:id", ruleCtrl.Delete)

			admin.POST("/emergency-mode", emergencyCtrl.Activate)
			admin.POST("/emergency-mode/:id/deactivate", emergencyCtrl.Deactivate)
			admin.GET("/emergency-mode", emergencyCtrl.Current)
		}

		// Staff (admin + teacher)
		staff := api.Group("", middleware.RequireRoles("admin", "teacher"))
		{
			staff.GET("/access-logs", logCtrl.List)
			staff.GET("/attendance", attendanceCtrl.List)
			staff.POST("/attendance/override", attendanceCtrl.Override)
			staff.POST("/attendance/finalize", attendanceCtrl.Finalize)
			staff.GET("/ws/feed", ws.FeedHandler(hub))
		}
	}
}
