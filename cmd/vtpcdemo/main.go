// Command vtpcdemo is a minimal flag-driven demonstration of the cache:
// open a file, run one read, write, or stats operation, and print the
// result. It is not the sequential/random benchmarking driver spec.md's
// Non-goals exclude.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/SemPozh/osi"
	"github.com/SemPozh/osi/profiles"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "vtpcdemo",
		Usage: "exercise the vtpc block cache against a single file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "profile", Value: "default", Usage: "named cache profile to use"},
		},
		Commands: []*cli.Command{
			{
				Name:      "read",
				Usage:     "read COUNT bytes at OFFSET from FILE and print them as hex",
				ArgsUsage: "FILE OFFSET COUNT",
				Action:    runRead,
			},
			{
				Name:      "write",
				Usage:     "write TEXT at OFFSET into FILE",
				ArgsUsage: "FILE OFFSET TEXT",
				Action:    runWrite,
			},
			{
				Name:      "stats",
				Usage:     "open FILE, read it once fully, and print hit/miss counters",
				ArgsUsage: "FILE",
				Action:    runStats,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("vtpcdemo: %s", err)
	}
}

func newCache(ctx *cli.Context) (*osi.Cache, error) {
	profile, err := profiles.Get(ctx.String("profile"))
	if err != nil {
		return nil, err
	}
	return osi.New(profile.ToConfig())
}

func runRead(ctx *cli.Context) error {
	if ctx.NArg() != 3 {
		return fmt.Errorf("usage: vtpcdemo read FILE OFFSET COUNT")
	}
	path := ctx.Args().Get(0)
	offset, count, err := parseOffsetCount(ctx.Args().Get(1), ctx.Args().Get(2))
	if err != nil {
		return err
	}

	cache, err := newCache(ctx)
	if err != nil {
		return err
	}

	fd, err := cache.Open(path, os.O_RDONLY, 0o644)
	if err != nil {
		return err
	}
	defer cache.Close(fd)

	if _, err := cache.Seek(fd, offset, 0); err != nil {
		return err
	}
	buf := make([]byte, count)
	n, err := cache.Read(fd, buf)
	if err != nil {
		return err
	}
	fmt.Printf("%x\n", buf[:n])
	return nil
}

func runWrite(ctx *cli.Context) error {
	if ctx.NArg() != 3 {
		return fmt.Errorf("usage: vtpcdemo write FILE OFFSET TEXT")
	}
	path := ctx.Args().Get(0)
	offset, _, err := parseOffsetCount(ctx.Args().Get(1), "0")
	if err != nil {
		return err
	}
	text := ctx.Args().Get(2)

	cache, err := newCache(ctx)
	if err != nil {
		return err
	}

	fd, err := cache.Open(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer cache.Close(fd)

	if _, err := cache.Seek(fd, offset, 0); err != nil {
		return err
	}
	n, err := cache.Write(fd, []byte(text))
	if err != nil {
		return err
	}
	if err := cache.Fsync(fd); err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes\n", n)
	return nil
}

func runStats(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: vtpcdemo stats FILE")
	}
	path := ctx.Args().Get(0)

	cache, err := newCache(ctx)
	if err != nil {
		return err
	}

	fd, err := cache.Open(path, os.O_RDONLY, 0o644)
	if err != nil {
		return err
	}
	defer cache.Close(fd)

	buf := make([]byte, 64*1024)
	for {
		n, err := cache.Read(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}

	hits, misses, resident := cache.Stats()
	fmt.Printf("hits=%d misses=%d resident=%d\n", hits, misses, resident)
	return nil
}

func parseOffsetCount(offsetArg, countArg string) (int64, int64, error) {
	var offset, count int64
	if _, err := fmt.Sscanf(offsetArg, "%d", &offset); err != nil {
		return 0, 0, fmt.Errorf("invalid offset %q: %w", offsetArg, err)
	}
	if _, err := fmt.Sscanf(countArg, "%d", &count); err != nil {
		return 0, 0, fmt.Errorf("invalid count %q: %w", countArg, err)
	}
	return offset, count, nil
}
