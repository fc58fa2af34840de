// Command dryrun applies a filter file to an mbox archive and prints the
// extraction results as indented JSON. This utility is used to test filter
// definitions against collected email samples before deploying them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/filter"
	"github.com/mailscout/mailscout/pkg/logging"
	mboxreader "github.com/mailscout/mailscout/pkg/reader/mbox"
	"github.com/mailscout/mailscout/pkg/runner"
)

func main() {
	filtersPath := flag.String("filters", "filters.json", "path to filter definitions JSON file")
	mboxPath := flag.String("mbox", "", "path to mbox archive to process")
	workers := flag.Int("workers", runner.DefaultWorkers, "extraction worker count")
	flag.Parse()

	logger := logging.Setup(logging.DefaultConfig())

	if *mboxPath == "" {
		fmt.Fprintln(os.Stderr, "dryrun: -mbox is required")
		flag.Usage()
		os.Exit(2)
	}

	filters, err := filter.LoadFile(*filtersPath)
	if err != nil {
		logger.Error("failed to load filters", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	reader := mboxreader.New(*mboxPath, logger.With("component", "mbox_reader"))

	emails := make(chan *api.EmailMessage, 100)
	readerDone := make(chan error, 1)
	go func() {
		readerDone <- reader.Read(ctx, emails)
	}()

	var batch []*api.EmailMessage
	for msg := range emails {
		batch = append(batch, msg)
	}
	if err := <-readerDone; err != nil {
		logger.Error("failed to read mbox", "error", err)
		os.Exit(1)
	}

	r := runner.New(filters, runner.Config{Workers: *workers}, logger.With("component", "runner"))
	results, errs := r.Run(ctx, batch)
	for _, e := range errs {
		logger.Warn("extraction failed", "email_id", e.EmailID, "error", e.Err)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		logger.Error("failed to marshal results", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	logger.Info("dry run complete",
		"emails", len(batch),
		"matched", len(results),
		"failed", len(errs),
	)
}
