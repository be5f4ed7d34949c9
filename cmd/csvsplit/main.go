package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/s33g/llm-probe/internal/splitter"
)

func main() {
	// Parse flags
	input := flag.String("input", "", "Path to the ';'-separated CSV file to split")
	output := flag.String("output", "", "Output directory (defaults to the input file's directory)")
	records := flag.Int("records", splitter.DefaultRecordsPerFile, "Records per output file")
	flag.Parse()

	// Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := log.With().Str("component", "csvsplit").Logger()

	if *input == "" {
		logger.Fatal().Msg("-input is required")
	}

	outputDir := *output
	if outputDir == "" {
		outputDir = filepath.Dir(*input)
	}

	if err := splitter.Split(*input, outputDir, *records, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to split CSV file")
	}
}
