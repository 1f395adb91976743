package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LeoCommon/fieldnode/internal/config"
	"github.com/LeoCommon/fieldnode/internal/node"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"go.uber.org/zap"
)

func loadConfiguration(configPath string) (*config.Manager, error) {
	conf := config.NewManager()
	if err := conf.Load(configPath, false); err != nil {
		log.Error("an error occurred while trying to load the config file, trying default path", zap.String("path", configPath), zap.Error(err))

		conf = config.NewManager()
		if err = conf.Load(config.DefaultConfigPath, false); err != nil {
			return nil, err
		}
	}

	return conf, nil
}

func main() {
	flags := config.ParseCLIFlags()

	log.Init(flags.Debug)
	defer log.Sync()

	log.Info("fieldnode starting")

	conf, err := loadConfiguration(flags.ConfigPath)
	if err != nil {
		fmt.Printf("Initialization failed, error: %s\n", err)
		os.Exit(1)
	}

	// The -debug flag wins over the config file
	if flags.Debug {
		if err := conf.Node().Update(func(c *config.NodeConfig) { c.Debug = true }); err != nil {
			log.Warn("could not apply the debug flag", zap.Error(err))
		}
	}
	log.SetDebug(conf.Node().C().Debug)

	devices := node.OpenDevices(conf)
	if devices.GPS == nil && devices.Sigfox == nil && devices.LoRa == nil {
		log.Fatal("no device could be opened, nothing to do")
	}

	app := node.New(conf, clock.System(), devices)
	defer app.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Error("node terminated", zap.Error(err))
		return
	}

	log.Info("fieldnode stopped", zap.Int("reports", app.Reports()))
}
