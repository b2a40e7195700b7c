package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/trezcool/schoolstats/core"
	logsvc "github.com/trezcool/schoolstats/services/logger"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf.Debug)
	if err != nil {
		log.Fatalf("main.NewZap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Sugar().Named("admin"), conf)

	cli := newCommandLine(conf, os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	err = cli.run(os.Args[1:])
	cli.close(logger)
	if err != nil {
		logger.Error(fmt.Sprintf("error: %v", err), err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
