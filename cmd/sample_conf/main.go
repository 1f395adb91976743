package main

import (
	"flag"

	"github.com/LeoCommon/fieldnode/internal/config"
	"github.com/LeoCommon/fieldnode/pkg/file"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"go.uber.org/zap"
)

// Writes the default configuration as a starting point for a node
func main() {
	out := flag.String("out", "./config/"+config.ConfigFile, "where to write the sample config")
	flag.Parse()

	log.Init(true)

	defaultConfigBytes, err := config.Marshal(config.New())
	if err != nil {
		log.Fatal("Failed to marshal default config", zap.Error(err))
	}

	if err := file.WriteTo(*out, defaultConfigBytes); err != nil {
		log.Fatal("Failed to write config file", zap.Error(err))
	}

	log.Info("sample config written", zap.String("path", *out))
}
