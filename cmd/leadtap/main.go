package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = runScan(os.Args[2:])
	case "people":
		err = runPeople(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "version":
		fmt.Println("leadtap " + version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `leadtap - business directory lead collector

Usage:
  leadtap scan [flags]     Collect businesses from one or more directories
  leadtap people [flags]   Collect profiles from a people search
  leadtap export [flags]   Export a .db to CSV, XLSX or JSON
  leadtap version          Show version

Run 'leadtap <command> --help' for flags.
`)
}
