// filmcheck validates film checkpoint files.
//
// Usage:
//
//	filmcheck [-q|--quiet] <filename> [<filename> ...]
//
// Options:
//
//	-q, --quiet   Only output errors. Exit code indicates pass/fail.
//	-h, --help    Show this help message.
//
// Exit codes:
//
//	0: All files valid
//	1: One or more files invalid
//	2: Error (file not found, etc.)
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mrjoshuak/go-renderfilm/film"
	"github.com/mrjoshuak/go-renderfilm/filmutil"
)

func main() {
	quiet := false
	files := []string{}

	for i := 1; i < len(os.Args); i++ {
		switch arg := os.Args[i]; arg {
		case "-q", "--quiet":
			quiet = true
		case "-h", "--help":
			usage()
			os.Exit(0)
		default:
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		usage()
		os.Exit(2)
	}

	allValid := true
	for _, path := range files {
		issues, err := checkFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "filmcheck: %s: %v\n", path, err)
			os.Exit(2)
		}
		if len(issues) > 0 {
			allValid = false
			for _, issue := range issues {
				fmt.Printf("%s: error: %s\n", path, issue)
			}
		} else if !quiet {
			if info, infoErr := filmutil.GetInfo(path); infoErr == nil {
				fmt.Printf("%s: ok (%s, %dx%d, %d passes, %d aux)\n",
					path, info.Format, info.Check.W, info.Check.H, info.Check.NumPasses, info.NumAuxPasses)
			} else {
				fmt.Printf("%s: ok\n", path)
			}
		}
	}

	if !allValid {
		os.Exit(1)
	}
}

// checkFile decodes a checkpoint and verifies its structural invariants.
func checkFile(path string) ([]string, error) {
	d, err := film.DecodeFilmFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return []string{err.Error()}, nil
	}

	var issues []string
	c := d.Check
	if c.StructureVersion != film.FilmStructureVersion {
		issues = append(issues, fmt.Sprintf("structure version %d, expected %d", c.StructureVersion, film.FilmStructureVersion))
	}
	if c.W <= 0 || c.H <= 0 {
		issues = append(issues, fmt.Sprintf("invalid dimensions %dx%d", c.W, c.H))
	}
	if c.CX1-c.CX0 != c.W || c.CY1-c.CY0 != c.H {
		issues = append(issues, "border coordinates do not match dimensions")
	}
	if c.NumPasses < 1 {
		issues = append(issues, "checkpoint has no passes")
	}

	for idx, pass := range d.Passes {
		for i, p := range pass {
			if p.Weight < 0 {
				issues = append(issues, fmt.Sprintf("pass %d pixel %d has negative weight %g", idx, i, p.Weight))
				break
			}
		}
	}
	return issues, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: filmcheck [-q|--quiet] <filename> [<filename> ...]")
}
