package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"edge-logger/pkg/edgelogger"
)

func main() {
	var opts edgelogger.Options
	flag.StringVar(&opts.ConfigPath, "config", "", "path to YAML config (optional)")
	flag.StringVar(&opts.LogDir, "log-dir", "", "directory for daily CSV files and app.log")
	flag.IntVar(&opts.HTTPPort, "http-port", 0, "HTTP listen port")
	flag.StringVar(&opts.TopicBase, "topic-base", "", "MQTT topic prefix")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := edgelogger.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "edge-logger: %v\n", err)
		os.Exit(1)
	}
}
