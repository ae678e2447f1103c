package main

import (
	"github.com/icebergrest/catalog/internal/cmd"
	"github.com/rs/zerolog/log"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		log.Fatal().Err(err)
	}
}
