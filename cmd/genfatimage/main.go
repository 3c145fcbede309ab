package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/chasonr/genfatimage/errors"
	"github.com/chasonr/genfatimage/fat"
	"github.com/chasonr/genfatimage/host"
)

func main() {
	app := cli.App{
		Name:  "genfatimage",
		Usage: "Generate a FAT12/16/32 disk image from host files and directories",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Value: "dos-volume.img", Usage: "output image path"},
			&cli.BoolFlag{Name: "verbose", Usage: "emit a summary on completion"},
			&cli.StringFlag{Name: "preset", Usage: "floppy preset: 360, 720, 1200, 1440, or 2880"},
			&cli.Int64Flag{Name: "volume-size", Usage: "total image size in bytes (0 = derive from contents)"},
			&cli.Int64Flag{Name: "free-space", Usage: "minimum free bytes to reserve"},
			&cli.IntFlag{Name: "cluster-size", Usage: "bytes per cluster (0 = auto)"},
			&cli.IntFlag{Name: "root-dir-size", Usage: "root directory entry count (FAT12/16)"},
			&cli.IntFlag{Name: "fat-width", Usage: "force FAT width: 12, 16, or 32"},
			&cli.BoolFlag{Name: "partitioned", Usage: "emit an MBR and a single partition"},
			&cli.StringFlag{Name: "label", Value: "NO NAME", Usage: "volume label (<= 11 ASCII characters)"},
			&cli.StringFlag{Name: "boot-record", Usage: "path to a boot-sector image to overlay"},
			&cli.StringFlag{Name: "oem-name", Value: "MSWIN4.1", Usage: "8-byte OEM string"},
			&cli.StringFlag{Name: "serial", Usage: "volume serial as HHHH-HHHH (default: time-based)"},
			&cli.IntFlag{Name: "sectors-per-track", Value: 63, Usage: "CHS geometry"},
			&cli.IntFlag{Name: "num-heads", Value: 255, Usage: "CHS geometry"},
			&cli.StringFlag{Name: "media-desc", Usage: "1-2 hex digits (default: F8 if partitioned else F0)"},
			&cli.IntFlag{Name: "sector-size", Value: 512, Usage: "power of two in [128, 32768]"},
			&cli.IntFlag{Name: "reserved-sectors", Usage: "count (0 = auto)"},
			&cli.IntFlag{Name: "num-fats", Value: 2, Usage: "count"},
		},
		ArgsUsage: "SOURCE [SOURCE...]",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// countFlagOccurrences counts how many times --name or -name (bare or with a
// "=value" suffix) appears in args. urfave/cli/v2's plain flag types silently
// keep only the last occurrence of a repeated flag, so callers that must
// reject a repeated flag need to count occurrences themselves from the raw
// argument list.
func countFlagOccurrences(args []string, name string) int {
	long, short := "--"+name, "-"+name
	count := 0
	for _, a := range args {
		if a == long || a == short || strings.HasPrefix(a, long+"=") || strings.HasPrefix(a, short+"=") {
			count++
		}
	}
	return count
}

// run builds Options from the parsed flags, walks every source argument into a
// directory tree, then drives the sizing solver and volume writer, in that
// order, once per invocation.
func run(c *cli.Context) error {
	if n := countFlagOccurrences(os.Args[1:], "preset"); n > 1 {
		return errors.BadOption("preset flag given %d times, expected at most one", n)
	}
	if n := countFlagOccurrences(os.Args[1:], "fat-width"); n > 1 {
		return errors.BadOption("fat-width flag given %d times, expected at most one", n)
	}

	opts := fat.DefaultOptions()
	opts.Output = c.String("output")
	opts.Verbose = c.Bool("verbose")
	opts.VolumeSize = c.Int64("volume-size")
	opts.FreeSpace = c.Int64("free-space")
	opts.ClusterSize = c.Int("cluster-size")
	opts.RootDirSize = c.Int("root-dir-size")
	opts.FATWidthForced = c.Int("fat-width")
	opts.Partitioned = c.Bool("partitioned")
	opts.Label = c.String("label")
	opts.BootRecord = c.String("boot-record")
	opts.OEMName = c.String("oem-name")
	opts.Serial = c.String("serial")
	opts.SectorsPerTrack = c.Int("sectors-per-track")
	opts.NumHeads = c.Int("num-heads")
	opts.MediaDesc = c.String("media-desc")
	opts.SectorSize = c.Int("sector-size")
	opts.ReservedSectors = c.Int("reserved-sectors")
	opts.NumFATs = c.Int("num-fats")

	sources := c.Args().Slice()
	opts.NumFiles = len(sources)

	if preset := c.String("preset"); preset != "" {
		if err := opts.ApplyPreset(preset); err != nil {
			return err
		}
	}

	if err := opts.Validate(); err != nil {
		return err
	}

	tree := fat.NewTree()
	for _, src := range sources {
		if err := host.AddPath(tree, src, "", fat.AttrArchive); err != nil {
			return err
		}
	}

	geom, err := fat.Solve(tree, opts)
	if err != nil {
		return err
	}

	out, oerr := os.Create(opts.Output)
	if oerr != nil {
		return fmt.Errorf("cannot create %s: %w", opts.Output, oerr)
	}
	defer out.Close()

	if werr := fat.Write(out, tree, opts, geom); werr != nil {
		return werr
	}

	if opts.Verbose {
		log.Printf("wrote %s: %d bytes, FAT%d, %d cluster(s), cluster size %d",
			opts.Output, int64(geom.EndOfVolume)*int64(geom.SectorSize), geom.FATWidth, geom.ClusterCount, geom.ClusterSize)
	}
	return nil
}
