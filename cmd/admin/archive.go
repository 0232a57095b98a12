package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"hivemind.ai/internal/persistence/archive"
)

// archiveCmd lists archived snapshots, or copies one out with -export.
func archiveCmd(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	tick := fs.Uint64("tick", 0, "archive tick to export")
	export := fs.String("export", "", "copy the archive for -tick to this path")
	_ = fs.Parse(args)

	s := &archive.Store{Dir: filepath.Join(*dataDir, "archive")}
	if *export != "" {
		if err := s.Export(*tick, *export); err != nil {
			fmt.Fprintln(os.Stderr, "export:", err)
			os.Exit(1)
		}
		fmt.Println(*export)
		return
	}

	metas, err := s.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for i := len(metas) - 1; i >= 0; i-- {
		_ = enc.Encode(metas[i])
	}
}
