package main

import (
	"context"
	"os"
	"time"

	"github.com/giongto35/cloud-player/pkg/config"
	"github.com/giongto35/cloud-player/pkg/logger"
	gos "github.com/giongto35/cloud-player/pkg/os"
	"github.com/giongto35/cloud-player/pkg/player"
)

var Version = "?"

func main() {
	conf, err := config.NewPlayerConfig(os.Args[1:])
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("Bad config")
	}
	log := logger.NewConsole(conf.Player.Debug, "p", conf.Player.NoColor)
	log.Info().Msgf("version %s", Version)
	log.Debug().Msgf("conf: %+v", conf)

	app, err := player.New(conf, log)
	if err != nil {
		log.Error().Err(err).Msg("player init fail")
		os.Exit(1)
	}
	app.Run()
	<-gos.ExpectTermination()

	ctx, cancel := context.WithTimeout(context.Background(), conf.Player.StopTimeout+5*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
