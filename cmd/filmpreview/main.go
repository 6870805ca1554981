// filmpreview extracts a scaled PNG preview of the beauty pass from a
// film checkpoint.
//
// Usage:
//
//	filmpreview [-s <size>] <input.film> <output.png>
//
// Options:
//
//	-s <size>    Maximum dimension of the preview in pixels (default 512).
//	-h, --help   Show this help message.
//
// Exit codes:
//
//	0: Preview written
//	2: Error
package main

import (
	"fmt"
	"image/png"
	"os"
	"strconv"

	"github.com/mrjoshuak/go-renderfilm/film"
	"github.com/mrjoshuak/go-renderfilm/filmutil"
)

func main() {
	size := 512
	args := []string{}

	for i := 1; i < len(os.Args); i++ {
		switch arg := os.Args[i]; arg {
		case "-s":
			i++
			if i >= len(os.Args) {
				usage()
				os.Exit(2)
			}
			v, err := strconv.Atoi(os.Args[i])
			if err != nil || v <= 0 {
				usage()
				os.Exit(2)
			}
			size = v
		case "-h", "--help":
			usage()
			os.Exit(0)
		default:
			args = append(args, arg)
		}
	}

	if len(args) != 2 {
		usage()
		os.Exit(2)
	}

	d, err := film.DecodeFilmFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "filmpreview: %v\n", err)
		os.Exit(2)
	}

	img, err := filmutil.Preview(d, size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "filmpreview: %v\n", err)
		os.Exit(2)
	}

	out, err := os.Create(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "filmpreview: %v\n", err)
		os.Exit(2)
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		fmt.Fprintf(os.Stderr, "filmpreview: %v\n", err)
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: filmpreview [-s <size>] <input.film> <output.png>")
}
