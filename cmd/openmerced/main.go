package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/openmerce/openmerce/config"
	"github.com/openmerce/openmerce/internal/app"
)

var (
	confFile = flag.String("c", "/etc/openmerce.yml", "config file")
	initDB   = flag.Bool("initdb", false, "drop and recreate all tables")
	showVer  = flag.Bool("v", false, "print version")
)

var version = "dev"

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("openmerced", version)
		os.Exit(0)
	}

	cfg := config.LoadConfig(*confFile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initDB {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	zap.L().Info("openmerced started", zap.String("version", version))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zap.L().Info("openmerced shutting down")
}
