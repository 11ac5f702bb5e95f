package main

import (
	"fmt"
	"os"

	"github.com/afeish/flatio/cmd"
	"github.com/afeish/flatio/cmd/buf"
	"github.com/afeish/flatio/cmd/dbf"
	"github.com/afeish/flatio/cmd/shp"

	"github.com/pingcap/log"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	BuildTime   = ""
	BuildNumber = ""
	GitCommit   = ""
	Version     = "1.0.0"
)

func main() {
	cli.VersionPrinter = func(c *cli.Context) {
		if _, err := fmt.Fprintf(c.App.Writer,
			"Version:    %s\n"+
				"Git Commit: %s\n"+
				"Build Time: %s\n"+
				"Build:      %s\n",
			c.App.Version, GitCommit, BuildTime, BuildNumber); err != nil {
			log.Fatal("", zap.Error(err))
		}
	}
	app := &cli.App{
		Name:                 "flatio",
		Usage:                "windowed typed access to flat binary files, shapefiles and dBase tables",
		Version:              Version,
		EnableBashCompletion: true,
		Flags:                cmd.GlobalFlags,
		Commands: []*cli.Command{
			buf.CmdBuf(),
			dbf.CmdDbf(),
			shp.CmdShp(),
		},
	}

	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(c.App.ErrWriter, "No matching command '%s'\n\n", command)
		cli.ShowSubcommandHelpAndExit(c, 1)
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal("", zap.Error(err))
	}
}
