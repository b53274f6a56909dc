package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/objextract/internal/ledger"
	"github.com/kdimtricp/objextract/internal/logging"
)

const usage = `Usage: ledger <list|mark|import> [flags]

  list    print the sources recorded for a dataset split
  mark    record sources as done (remaining arguments are source names)
  import  copy a split's entries from one backend into another`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	var (
		backend     = cmd.String("backend", getEnv("OBJEXTRACT_LEDGER_BACKEND", ledger.BackendFile), "Ledger backend (file or sqlite)")
		dir         = cmd.String("dir", getEnv("OBJEXTRACT_LEDGER_DIR", "./history"), "Ledger directory")
		dataset     = cmd.String("dataset", getEnv("OBJEXTRACT_DATASET", ""), "Dataset name")
		split       = cmd.String("split", "", "Split name")
		fromBackend = cmd.String("from-backend", ledger.BackendFile, "Source backend for import")
		fromDir     = cmd.String("from-dir", "", "Source directory for import")
	)
	cmd.Parse(os.Args[2:])

	if *dataset == "" || *split == "" {
		log.Fatal("Please provide -dataset and -split")
	}
	key := ledger.Key{Dataset: *dataset, Split: *split}

	runID := logging.NewRunID()
	led, err := ledger.Open(*backend, *dir, runID)
	if err != nil {
		log.Fatal("Failed to open ledger: ", err)
	}
	defer led.Close()

	switch os.Args[1] {
	case "list":
		entries, err := led.Entries(key)
		if err != nil {
			log.Fatal("Failed to read ledger: ", err)
		}
		for _, name := range entries {
			fmt.Println(name)
		}
		fmt.Fprintf(os.Stderr, "%d source(s) done in %s\n", len(entries), key)

	case "mark":
		names := cmd.Args()
		if len(names) == 0 {
			log.Fatal("Please provide at least one source name")
		}
		for _, name := range names {
			if err := led.MarkDone(key, name); err != nil {
				log.Fatal("Failed to mark source: ", err)
			}
		}
		fmt.Printf("Marked %d source(s) done in %s\n", len(names), key)

	case "import":
		if *fromDir == "" {
			log.Fatal("Please provide -from-dir")
		}
		src, err := ledger.Open(*fromBackend, *fromDir, runID)
		if err != nil {
			log.Fatal("Failed to open source ledger: ", err)
		}
		defer src.Close()

		added, err := ledger.Copy(led, src, key)
		if err != nil {
			log.Fatal("Failed to import ledger: ", err)
		}
		fmt.Printf("Imported %d source(s) into %s\n", added, key)

	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
