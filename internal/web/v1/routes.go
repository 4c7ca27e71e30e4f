package v1

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the profile API under api. Admin routes run behind admin.
func (h *ProfileHandler) RegisterRoutes(api gin.IRouter, admin ...gin.HandlerFunc) {
	api.GET("/profiles", h.ListProfiles)
	api.GET("/profiles/:slug", h.GetProfile)

	adminGroup := api.Group("/admin", admin...)
	{
		adminGroup.POST("/profiles", h.CreateProfile)
		adminGroup.PUT("/profiles/:mcId", h.UpdateProfile)
		adminGroup.DELETE("/profiles/:mcId", h.DeleteProfile)
		adminGroup.POST("/uploads", h.UploadAsset)
	}
}
