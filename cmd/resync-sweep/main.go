package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Sweeps PENDING aggregate resync markers, the same work POST /internal/resync/process
// does. Run once (default) or on an interval as a sidecar job.
func main() {
	interval := flag.Duration("interval", 0, "Optional: repeat interval (e.g. 30s). Default: run once and exit")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	ctx := context.Background()
	for {
		healed, err := workflow.ProcessPendingResyncs(ctx)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "resync-sweep"}).Error(err.Error())
			if *interval == 0 {
				os.Exit(1)
			}
		} else if healed > 0 {
			logger.WithFields(logrus.Fields{"healed": healed}).Info("resync sweep healed aggregates")
		}
		if *interval == 0 {
			return
		}
		time.Sleep(*interval)
	}
}
