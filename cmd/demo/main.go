package main

import (
	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/common/mzap"
	"github.com/cascadedb/branchdata/internal/bootstrap"
)

func main() {
	logger := mzap.InitializeLogger()
	defer logger.Sync()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Fatalf("load config: %s", err)
	}

	telemetry := bootstrap.NewTelemetry(cfg)
	defer telemetry.ShutdownTelemetry()

	manager := bootstrap.NewManager(cfg)

	addr := ":" + cfg.HTTPPort

	launcher := common.NewLauncher(
		common.WithLogger(logger),
		common.RunApp("demo-http", &httpApp{cfg: cfg, manager: manager, addr: addr}),
	)

	launcher.Run()
}
