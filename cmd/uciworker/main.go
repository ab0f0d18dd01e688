// Command uciworker pulls chess analysis and move jobs from a remote job
// server, drives a local UCI engine to compute them, and posts the results
// back, restarting the engine if it dies and backing off between failed
// requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/herohde/uciworker/pkg/config"
	"github.com/herohde/uciworker/pkg/jobapi"
	"github.com/herohde/uciworker/pkg/logx"
	"github.com/herohde/uciworker/pkg/supervisor"
	"github.com/seekerror/build"
)

var version = build.NewVersion(0, 1, 0)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logx.Errorf(ctx, "Configuration error: %v", err)
		os.Exit(78)
	}
	logx.SetAPIKey(cfg.APIKey)

	userAgent := fmt.Sprintf("uciworker/%v (%v)", version, runtime.Version())
	client := jobapi.NewClient(cfg.Endpoint, userAgent)

	logx.Infof(ctx, "Starting uciworker %v with %v instance(s), %v thread(s) each",
		version, cfg.Instances(), cfg.ThreadsPerInstance)

	sig := supervisor.NewSignalHandler()
	defer sig.Stop()

	sup := supervisor.New(cfg, client, version.String(), runtime.Version(), supervisor.NoopUpdateChecker{})
	os.Exit(sup.Run(ctx, sig))
}
