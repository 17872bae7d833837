package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API on r
func RegisterRoutes(r gin.IRouter, documents *DocumentHandler, extraction *ExtractionHandler, tasks *TaskHandler) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	api := r.Group("/api")
	{
		// Document endpoints
		api.POST("/documents", documents.SubmitDocument)
		api.GET("/documents", documents.ListDocuments)
		api.GET("/documents/:id", documents.GetDocument)
		api.POST("/documents/:id/reprocess", documents.ReprocessDocument)

		// Extraction endpoints
		api.POST("/documents/:id/extract/:field", extraction.ExtractField)
		api.POST("/documents/:id/summaries", extraction.ExtractAllSections)
		api.GET("/results/:owner/:type", extraction.GetResult)

		// Collection endpoints
		api.POST("/collections", extraction.CreateCollection)
		api.GET("/collections/:id", extraction.GetCollection)
		api.POST("/collections/:id/gaps", extraction.AnalyzeGaps)
		api.POST("/comparisons", extraction.GenerateComparison)

		// Task endpoints
		api.GET("/tasks/:id", tasks.GetTask)
	}
}
