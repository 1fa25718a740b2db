package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

func main() {
	var (
		command = flag.String("cmd", "inspect", "Command: inspect, dump, hash, convert")
		file    = flag.String("file", "", "Capture file to read")
		out     = flag.String("out", "", "Output file for convert (.zst for zstd)")
		limit   = flag.Int("limit", 50, "Maximum number of records for dump")
	)
	flag.Parse()

	if *file == "" {
		fmt.Println("❌ -file is required")
		flag.Usage()
		os.Exit(1)
	}

	switch *command {
	case "inspect":
		summary, err := inspectFile(*file)
		if err != nil && summary == nil {
			log.Fatalf("❌ Inspect failed: %v", err)
		}
		printSummary(summary)
		if err != nil {
			fmt.Printf("⚠️  Stopped early: %v\n", err)
			os.Exit(2)
		}

	case "dump":
		if err := dumpFile(os.Stdout, *file, *limit); err != nil {
			log.Fatalf("❌ Dump failed: %v", err)
		}

	case "hash":
		summary, err := inspectFile(*file)
		if summary == nil {
			log.Fatalf("❌ Hash failed: %v", err)
		}
		fmt.Println(summary.WorldHash)

	case "convert":
		if *out == "" {
			log.Fatalf("❌ -out is required for convert")
		}
		n, err := convertFile(*file, *out)
		if err != nil {
			log.Fatalf("❌ Convert failed after %d records: %v", n, err)
		}
		fmt.Printf("✅ %d records written to %s\n", n, *out)

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: inspect, dump, hash, convert")
		os.Exit(1)
	}
}

func printSummary(s *Summary) {
	fmt.Printf("📼 %s\n", s.Path)
	fmt.Printf("   version:    %d\n", s.Version)
	fmt.Printf("   world hash: %s\n", s.WorldHash)
	fmt.Printf("   size:       %s\n", humanize.Bytes(uint64(s.FileBytes)))
	fmt.Printf("   records:    %d (%d synthetic), payload %s\n",
		s.Records, s.Synthetic, humanize.Bytes(uint64(s.PayloadBytes)))
	if s.Records > 0 {
		fmt.Printf("   span:       %s .. %s (%v)\n",
			s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339), s.Last.Sub(s.First))
	}
	if s.PrevLenMismatches > 0 {
		fmt.Printf("   prev-len mismatches: %d\n", s.PrevLenMismatches)
	}

	codes := make([]string, 0, len(s.Codes))
	for code := range s.Codes {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if s.Codes[codes[i]] != s.Codes[codes[j]] {
			return s.Codes[codes[i]] > s.Codes[codes[j]]
		}
		return codes[i] < codes[j]
	})
	fmt.Println("   codes:")
	for _, code := range codes {
		fmt.Printf("     %-20s %d\n", code, s.Codes[code])
	}
}
