// filmmerge combines sibling film checkpoints into a single checkpoint,
// summing accumulated colors and weights per pixel and pass.
//
// Usage:
//
//	filmmerge -o <output.film> [-t|--text] <filename> [<filename> ...]
//	filmmerge -o <output.film> [-t|--text] -d <dir> -b <base>
//
// Options:
//
//	-o <file>    Output checkpoint path (required).
//	-d <dir>     Merge every sibling checkpoint found in this directory.
//	-b <base>    Output base name the sibling checkpoints share (with -d).
//	-t, --text   Write the output in the portable text form.
//	-h, --help   Show this help message.
//
// Exit codes:
//
//	0: Merge succeeded
//	1: Some inputs were skipped (geometry or version mismatch)
//	2: Error (no inputs, unreadable first input, write failure)
package main

import (
	"fmt"
	"os"

	"github.com/mrjoshuak/go-renderfilm/film"
	"github.com/mrjoshuak/go-renderfilm/filmutil"
)

func main() {
	out := ""
	dir := ""
	base := ""
	format := film.FilmFormatBinary
	files := []string{}

	for i := 1; i < len(os.Args); i++ {
		switch arg := os.Args[i]; arg {
		case "-o":
			i++
			if i >= len(os.Args) {
				usage()
				os.Exit(2)
			}
			out = os.Args[i]
		case "-d":
			i++
			if i >= len(os.Args) {
				usage()
				os.Exit(2)
			}
			dir = os.Args[i]
		case "-b":
			i++
			if i >= len(os.Args) {
				usage()
				os.Exit(2)
			}
			base = os.Args[i]
		case "-t", "--text":
			format = film.FilmFormatText
		case "-h", "--help":
			usage()
			os.Exit(0)
		default:
			files = append(files, arg)
		}
	}

	folderMode := dir != "" || base != ""
	if out == "" || (folderMode && (dir == "" || base == "" || len(files) > 0)) || (!folderMode && len(files) == 0) {
		usage()
		os.Exit(2)
	}

	var skipped []error
	if folderMode {
		f, sk, err := filmutil.MergeFolder(dir, base, format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "filmmerge: %v\n", err)
			os.Exit(2)
		}
		if err := f.SaveTo(out); err != nil {
			fmt.Fprintf(os.Stderr, "filmmerge: %v\n", err)
			os.Exit(2)
		}
		skipped = sk
	} else {
		sk, err := filmutil.MergeFiles(files, out, format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "filmmerge: %v\n", err)
			os.Exit(2)
		}
		skipped = sk
	}

	for _, s := range skipped {
		fmt.Fprintf(os.Stderr, "filmmerge: skipped %v\n", s)
	}
	fmt.Printf("merged checkpoints into %s\n", out)

	if len(skipped) > 0 {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: filmmerge -o <output.film> [-t|--text] <filename> [<filename> ...]")
	fmt.Fprintln(os.Stderr, "       filmmerge -o <output.film> [-t|--text] -d <dir> -b <base>")
}
