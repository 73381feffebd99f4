package router

import (
	"net/http"

	"github.com/cuongbtq/ddl-worker/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "ddl-task-api",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "ddl-task-api",
		})
	})

	taskHandler := handler.NewTaskHandler(deps)

	v1 := r.Group("/api/v1")
	{
		tasks := v1.Group("/hosts/:host/tasks")
		{
			// POST /api/v1/hosts/:host/tasks - Enqueue a command
			tasks.POST("", taskHandler.CreateTask)

			// GET /api/v1/hosts/:host/tasks - List pending tasks
			tasks.GET("", taskHandler.ListTasks)

			// GET /api/v1/hosts/:host/tasks/:task_id - Get a pending task
			tasks.GET("/:task_id", taskHandler.GetTask)

			// DELETE /api/v1/hosts/:host/tasks/:task_id - Drop a pending task
			tasks.DELETE("/:task_id", taskHandler.DeleteTask)
		}
	}

	return r
}
