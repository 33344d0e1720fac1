package main

import (
	"github.com/epicx/raysdf/log"
	"github.com/urfave/cli"
)

var logger = log.New("raysdf")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
