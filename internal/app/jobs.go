package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openmerce/openmerce/pkg/common"
)

// initJob starts the cron scheduler with the recurring maintenance
// jobs.
func (a *Application) initJob() {
	a.sched = cron.New()

	spec := a.settings.GetString("system", "low_stock_cron")
	if spec == "" {
		spec = "@daily"
	}
	if _, err := a.sched.AddFunc(spec, a.runLowStockScan); err != nil {
		zap.L().Error("failed to schedule low stock scan",
			zap.String("spec", spec), zap.Error(err))
	}

	a.sched.Start()
	zap.L().Info("scheduler started", zap.String("low_stock_cron", spec))
}

// runLowStockScan reports tracked products at or below their
// threshold.
func (a *Application) runLowStockScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	products, err := a.catalogSvc.LowStockProducts(ctx)
	if err != nil {
		zap.L().Error("low stock scan failed", zap.Error(err))
		return
	}
	for _, p := range products {
		zap.L().Warn("product low on stock",
			zap.String("sku", p.Sku),
			zap.String("name", p.Name),
			zap.Int("stock_quantity", p.StockQuantity),
			zap.Int("low_stock_threshold", p.LowStockThreshold),
			zap.String("price", common.FormatAmount(p.Price)))
	}
	if len(products) == 0 {
		zap.L().Debug("low stock scan clean")
	}
}
