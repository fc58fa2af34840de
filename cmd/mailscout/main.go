// Command mailscout runs the email extraction daemon: it reads emails from
// the configured source, applies the filter set, and writes extraction
// results to the configured sink.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mailscout/mailscout/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.json", "path to optional JSON config file")
	jsonLogs := flag.Bool("json-logs", false, "emit logs as JSON")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *jsonLogs {
		logCfg.JSON = true
	}
	logger := logging.Setup(logCfg)

	if err := run(logger, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mailscout: %v\n", err)
		os.Exit(1)
	}
}
