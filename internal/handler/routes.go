package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/halaqa-api/internal/middleware"
	"github.com/noah-isme/halaqa-api/internal/models"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Auth         *AuthHandler
	JoinRequests *JoinRequestHandler
	Enrollments  *EnrollmentHandler
	Halaqas      *HalaqaHandler
	Metrics      *MetricsHandler
}

// RegisterRoutes mounts the API under prefix. authenticate populates the
// caller claims; every route except login sits behind it.
func RegisterRoutes(r *gin.Engine, prefix string, authenticate gin.HandlerFunc, h Handlers) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	api.POST("/auth/login", h.Auth.Login)

	secured := api.Group("")
	secured.Use(authenticate)
	secured.GET("/auth/me", h.Auth.Me)

	reviewers := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	students := middleware.RequireRoles(models.RoleStudent, models.RoleAdmin)

	joinRequests := secured.Group("/join-requests")
	joinRequests.POST("", students, h.JoinRequests.Submit)
	joinRequests.GET("", h.JoinRequests.List)
	joinRequests.GET("/:id", h.JoinRequests.Get)
	joinRequests.GET("/:id/eligibility", reviewers, h.JoinRequests.Eligibility)
	joinRequests.POST("/:id/approve", reviewers, h.JoinRequests.Approve)
	joinRequests.PATCH("/:id", reviewers, h.JoinRequests.Respond)
	joinRequests.DELETE("/:id", students, h.JoinRequests.Remove)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", h.Enrollments.List)
	enrollments.POST("", students, h.Enrollments.SelfEnroll)
	enrollments.DELETE("/:id", h.Enrollments.Unenroll)

	halaqas := secured.Group("/halaqas")
	halaqas.GET("", h.Halaqas.List)
	halaqas.GET("/:id", h.Halaqas.Get)
	halaqas.GET("/:id/roster", reviewers, h.Halaqas.Roster)
}
