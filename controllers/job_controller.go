package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/models"
	"go_signal_engine/services/jobs"
)

// JobController exposes manual job triggers and run history.
type JobController struct {
	runner *jobs.Runner
	ledger *jobs.Ledger
	db     *gorm.DB
	logger *zap.Logger
}

// NewJobController creates a new job controller
func NewJobController(runner *jobs.Runner, ledger *jobs.Ledger, db *gorm.DB, logger *zap.Logger) *JobController {
	return &JobController{runner: runner, ledger: ledger, db: db, logger: logger}
}

// trigger runs one job synchronously and maps its summary onto an HTTP
// status. A busy lock means another run is already in flight. extra fields
// are merged into the success response.
func (jc *JobController) trigger(c *gin.Context, kind jobs.Kind, extra func(jobs.Summary) gin.H) {
	summary := jc.runner.Run(c.Request.Context(), kind)
	switch summary.Status {
	case jobs.StatusLockBusy:
		c.JSON(http.StatusConflict, gin.H{
			"error": "job is already running",
			"job":   summary.Job,
		})
	case jobs.StatusFailed:
		c.JSON(http.StatusInternalServerError, summary)
	default:
		resp := gin.H{"summary": summary}
		if extra != nil {
			for k, v := range extra(summary) {
				resp[k] = v
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// RunEodScan triggers the end-of-day import and, through the chain, the
// downstream compute jobs. The response carries the import accounting of the
// scan that just ran.
func (jc *JobController) RunEodScan(c *gin.Context) {
	jc.trigger(c, jobs.EodScan, func(jobs.Summary) gin.H {
		var scan models.EodScan
		if err := jc.db.Order("id DESC").First(&scan).Error; err != nil {
			return nil
		}
		return gin.H{
			"inserted": scan.Inserted,
			"updated":  scan.Updated,
			"skipped":  scan.Skipped,
		}
	})
}

// RunTechnicalCompute triggers indicator computation without a fresh import.
func (jc *JobController) RunTechnicalCompute(c *gin.Context) {
	jc.trigger(c, jobs.TechnicalCompute, func(jobs.Summary) gin.H {
		var job models.TechJob
		if err := jc.db.Order("id DESC").First(&job).Error; err != nil {
			return nil
		}
		return gin.H{
			"computed":      job.Computed,
			"skipped":       job.Skipped,
			"total_symbols": job.TotalSymbols,
		}
	})
}

// RunUniverseRefresh triggers one quote snapshot cycle.
func (jc *JobController) RunUniverseRefresh(c *gin.Context) {
	jc.trigger(c, jobs.UniverseRefresh, func(s jobs.Summary) gin.H {
		var total int64
		jc.db.Model(&models.Watchlist{}).Where("active = ?", true).Count(&total)
		return gin.H{
			"updated_symbols": s.Records,
			"total_symbols":   total,
		}
	})
}

// RunHistoryCleanup triggers the retention sweep.
func (jc *JobController) RunHistoryCleanup(c *gin.Context) {
	jc.trigger(c, jobs.HistoryCleanup, nil)
}

// GetJobRuns returns the recent run ledger for one job, newest first.
func (jc *JobController) GetJobRuns(c *gin.Context) {
	kind := jobs.Kind(c.Param("name"))
	if !jobs.Valid(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job: " + c.Param("name")})
		return
	}

	limit := 5
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := jc.ledger.RecentRuns(kind, limit)
	if err != nil {
		jc.logger.Error("failed to load job runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": kind, "runs": runs})
}
