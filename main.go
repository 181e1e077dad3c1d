/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"flag"
	"os"

	"github.com/spaghettifunk/anima-framegraph/engine"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Parse()

	tb := testbed.NewTestGame(nil)
	if err := engine.RunApplication(context.Background(), tb.Game, *configPath); err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}
