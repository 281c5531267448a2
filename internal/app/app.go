package app

import (
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/config"
	"github.com/openmerce/openmerce/internal/accounts"
	"github.com/openmerce/openmerce/internal/catalog"
	"github.com/openmerce/openmerce/internal/customers"
	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/events"
	"github.com/openmerce/openmerce/internal/notify"
	"github.com/openmerce/openmerce/internal/orders"
	"github.com/openmerce/openmerce/internal/reports"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	settings  *SettingsManager
	bus       EventBus.Bus

	ordersSvc    *orders.Service
	catalogSvc   *catalog.Service
	customersSvc *customers.Service
	accountsSvc  *accounts.Service
	mailer       *notify.Mailer
	exporter     *reports.Exporter
}

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Logger.FileEnable {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.Logger.Filename)
	}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.checkSuper()
	a.checkSettings()

	a.settings = NewSettingsManager(a.gormDB)
	a.bus = events.NewBus()

	a.ordersSvc = orders.NewService(a.gormDB, a.bus)
	if currency := a.settings.GetString("system", "default_currency"); currency != "" {
		a.ordersSvc.Currency = currency
	}
	a.catalogSvc = catalog.NewService(a.gormDB)
	a.customersSvc = customers.NewService(a.gormDB)
	a.accountsSvc = accounts.NewService(a.gormDB)
	a.exporter = reports.NewExporter(a.ordersSvc)

	a.mailer = notify.NewMailer(cfg.Smtp)
	if err := a.mailer.Subscribe(a.bus); err != nil {
		zap.L().Error("failed to subscribe mail notifier", zap.Error(err))
	}

	a.initJob()
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Orders returns the order workflow service.
func (a *Application) Orders() *orders.Service {
	return a.ordersSvc
}

// Catalog returns the category/product service.
func (a *Application) Catalog() *catalog.Service {
	return a.catalogSvc
}

// Customers returns the customer/address service.
func (a *Application) Customers() *customers.Service {
	return a.customersSvc
}

// Accounts returns the administrative user service.
func (a *Application) Accounts() *accounts.Service {
	return a.accountsSvc
}

// Reports returns the order export service.
func (a *Application) Reports() *reports.Exporter {
	return a.exporter
}

// Settings returns the runtime settings manager.
func (a *Application) Settings() *SettingsManager {
	return a.settings
}

// Bus returns the in-process event bus.
func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	_ = zap.L().Sync()
}
