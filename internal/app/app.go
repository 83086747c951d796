package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "cluster":
		return runCluster(args[1:])
	case "trending":
		return runTrending(args[1:])
	case "backfill-hashes":
		return runBackfillHashes(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "blindspot CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  blindspot <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health           Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest           Validate and store article payloads with dedup")
	fmt.Fprintln(os.Stderr, "  cluster          Cluster the unclustered article backlog")
	fmt.Fprintln(os.Stderr, "  trending         Recompute coverage velocity for recent clusters")
	fmt.Fprintln(os.Stderr, "  backfill-hashes  Compute content hashes for legacy articles")
	fmt.Fprintln(os.Stderr, "  process          Run cluster + trending under the run lock")
	fmt.Fprintln(os.Stderr, "  run-once         Alias for process")
	fmt.Fprintln(os.Stderr, "  serve            Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"blindspot <command> -h\" for command-specific flags.")
}
