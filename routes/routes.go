package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go_signal_engine/controllers"
)

// SetupRoutes wires all API endpoints
func SetupRoutes(router *gin.Engine, jobCtrl *controllers.JobController, marketCtrl *controllers.MarketController) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")
	{
		jobsGroup := api.Group("/jobs")
		{
			jobsGroup.POST("/eod-scan", jobCtrl.RunEodScan)
			jobsGroup.POST("/technical-compute", jobCtrl.RunTechnicalCompute)
			jobsGroup.POST("/universe-refresh", jobCtrl.RunUniverseRefresh)
			jobsGroup.POST("/history-cleanup", jobCtrl.RunHistoryCleanup)
			jobsGroup.GET("/:name/runs", jobCtrl.GetJobRuns)
		}

		market := api.Group("/market")
		{
			market.GET("/movers", marketCtrl.GetMovers)
			market.GET("/signals", marketCtrl.GetSignals)
			market.GET("/indicators/:symbol", marketCtrl.GetIndicators)
			market.GET("/quotes", marketCtrl.GetQuotes)
		}

		rulesGroup := api.Group("/rules")
		{
			rulesGroup.GET("", marketCtrl.GetRules)
			rulesGroup.POST("", marketCtrl.CreateRule)
			rulesGroup.POST("/validate", marketCtrl.ValidateRule)
		}

		watchlist := api.Group("/watchlist")
		{
			watchlist.GET("", marketCtrl.GetWatchlist)
			watchlist.POST("", marketCtrl.AddWatchlistSymbol)
		}
	}
}
