package router

import (
	"net/http"

	"cashbook/internal/backup"
	"cashbook/internal/balance"
	"cashbook/internal/budget"
	"cashbook/internal/config"
	"cashbook/internal/export"
	"cashbook/internal/handler"
	"cashbook/internal/ledger"
	"cashbook/internal/middleware"
	"cashbook/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps holds the services the API is built on.
type Deps struct {
	Store     *ledger.Store
	Balance   *balance.Engine
	Budgets   *budget.Tracker
	Backups   *backup.Manager
	Exports   *export.Service
	Scheduler *scheduler.Engine
	Log       *logrus.Logger
}

// SetupRouter configures the Gin engine and every /api route.
func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(d.Log), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ====== API ======
	// jwt.secret 为空时不鉴权
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	commodityHandler := handler.NewCommodityHandler(d.Store)
	api.GET("/commodities", commodityHandler.ListCommodities)
	api.POST("/commodities", commodityHandler.CreateCommodity)
	api.GET("/commodities/:uid", commodityHandler.GetCommodity)
	api.PUT("/commodities/:uid", commodityHandler.UpdateCommodity)
	api.DELETE("/commodities/:uid", commodityHandler.DeleteCommodity)

	accountHandler := handler.NewAccountHandler(d.Store, d.Balance)
	api.GET("/accounts", accountHandler.ListAccounts)
	api.POST("/accounts", accountHandler.CreateAccount)
	api.GET("/accounts/:uid", accountHandler.GetAccount)
	api.PUT("/accounts/:uid", accountHandler.UpdateAccount)
	api.DELETE("/accounts/:uid", accountHandler.DeleteAccount)
	api.GET("/accounts/:uid/balance", accountHandler.GetBalance)

	transactionHandler := handler.NewTransactionHandler(d.Store)
	api.GET("/transactions", transactionHandler.ListTransactions)
	api.POST("/transactions", transactionHandler.CreateTransaction)
	api.GET("/transactions/:uid", transactionHandler.GetTransaction)
	api.PUT("/transactions/:uid", transactionHandler.UpdateTransaction)
	api.DELETE("/transactions/:uid", transactionHandler.DeleteTransaction)
	api.GET("/splits", transactionHandler.ListSplits)

	priceHandler := handler.NewPriceHandler(d.Store)
	api.GET("/prices", priceHandler.ListPrices)
	api.POST("/prices", priceHandler.AddPrice)
	api.DELETE("/prices/:uid", priceHandler.DeletePrice)
	api.GET("/rates", priceHandler.GetRate)

	scheduleHandler := handler.NewScheduleHandler(d.Store, d.Scheduler)
	api.GET("/scheduled-actions", scheduleHandler.ListScheduledActions)
	api.POST("/scheduled-actions", scheduleHandler.CreateScheduledAction)
	api.GET("/scheduled-actions/:uid", scheduleHandler.GetScheduledAction)
	api.PUT("/scheduled-actions/:uid", scheduleHandler.UpdateScheduledAction)
	api.DELETE("/scheduled-actions/:uid", scheduleHandler.DeleteScheduledAction)
	api.PUT("/scheduled-actions/:uid/enabled", scheduleHandler.SetEnabled)
	api.GET("/scheduled-actions/:uid/state", scheduleHandler.GetState)
	api.POST("/scheduler/tick", scheduleHandler.Tick)

	budgetHandler := handler.NewBudgetHandler(d.Store, d.Budgets)
	api.GET("/budgets", budgetHandler.ListBudgets)
	api.POST("/budgets", budgetHandler.CreateBudget)
	api.GET("/budgets/:uid", budgetHandler.GetBudget)
	api.PUT("/budgets/:uid", budgetHandler.UpdateBudget)
	api.DELETE("/budgets/:uid", budgetHandler.DeleteBudget)
	api.GET("/budgets/:uid/periods/:n", budgetHandler.GetPeriod)

	backupHandler := handler.NewBackupHandler(d.Backups)
	api.POST("/backups", backupHandler.CreateBackup)
	api.GET("/backups", backupHandler.ListBackups)
	api.GET("/backups/:uid/download", backupHandler.DownloadBackup)
	api.POST("/backups/:uid/restore", backupHandler.RestoreBackup)
	api.DELETE("/backups/:uid", backupHandler.DeleteBackup)

	importExportHandler := handler.NewImportExportHandler(d.Store, d.Exports)
	api.GET("/export/:format", importExportHandler.Download)
	api.POST("/exports", importExportHandler.Export)
	api.POST("/import", importExportHandler.Import)

	return r
}
