package main

import (
	"github.com/rs/zerolog/log"
	"github.com/subosito/gotenv"
	"github/chapool/embedded-wallet/cmd"
)

func main() {
	// A local .env is optional; variables already set in the environment win.
	if err := gotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	cmd.Execute()
}
