package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/flyscan/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "plan":
		err = runPlan(args, os.Stdout)
	case "layout":
		err = runLayout(args, os.Stdout)
	case "schedule":
		err = runSchedule(args, os.Stdout)
	case "sweep":
		err = runSweep(args, os.Stdout)
	case "serve":
		err = runServe(args)
	case "migrate":
		err = runMigrate(args, os.Stdout)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`flyscan - Rotation speed planner for fly-scan tomography

Usage: flyscan <command> [options]

Commands:
  plan       Compute the velocity setpoint and blur checks for one scan
  layout     Compute the blur-limited frame layout for one exposure
  schedule   Print the interlaced acquisition schedule
  sweep      Evaluate the speed envelope across exposure times
  serve      Serve the planning API and plan archive over HTTP
  migrate    Apply or roll back plan archive migrations (up|down|version)
  version    Show flyscan version
  help       Show this help message

Common Flags:
  --config <file>      Plan config JSON, merged over --defaults
  --defaults <file>    Plan defaults JSON (default: config/plan.defaults.json)
  --cameras <file>     Camera calibration YAML for readout lookups
  --device <url>       Controller base URL for encoder and frame rate queries

Examples:
  # Plan the default scan with a 45 ms exposure and archive it
  flyscan plan --config scan.json --cameras config/cameras.example.yaml --db flyscan.db

  # 1500 projections in 4 interlaced loops as CSV
  flyscan schedule -n 1500 -k 4 -format csv

  # Speed envelope from 10 ms to 450 ms
  flyscan sweep --exposures 0.01:0.45:0.01 --fixed --out envelope.csv`)
}
