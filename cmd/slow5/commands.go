package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/koeng101/slow5"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

/******************************************************************************

application defines the slow5 command line utility: convert, index, merge,
and split. Each subcommand mirrors an operation original_source/ exposes
through its own CLI (slow5_convert, slow5_idx, slow5_merge, slow5_split),
rebuilt here on urfave/cli/v2 in the same Flags/Commands/Action shape
bebop-poly's own cmd/poly/poly/main.go uses.

merge and split both fan out with errgroup rather than bare goroutines and a
sync.WaitGroup: split's per-group writers touch disjoint output files and run
fully concurrently, while merge's per-input readers feed a single channel
that one goroutine drains into the (non-concurrent-safe) output Writer.

******************************************************************************/

const maxLineLength = 1 << 20

func application() *cli.App {
	return &cli.App{
		Name:  "slow5",
		Usage: "Convert, index, merge, and split SLOW5/BLOW5 nanopore signal files.",
		Commands: []*cli.Command{
			{
				Name:    "convert",
				Aliases: []string{"c"},
				Usage:   "Convert one file to another format and/or compression method.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "o", Required: true, Usage: "Output path. Format is inferred from its extension."},
					&cli.StringFlag{Name: "c", Value: "gzip", Usage: "Compression method for binary output: none or gzip."},
				},
				Action: convertCommand,
			},
			{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Build (or rebuild) the .idx sidecar index for a file.",
				Action:  indexCommand,
			},
			{
				Name:    "merge",
				Aliases: []string{"m"},
				Usage:   "Merge one or more files with identical schemas into one output file.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "o", Required: true, Usage: "Output path."},
					&cli.StringFlag{Name: "c", Value: "gzip", Usage: "Compression method for binary output: none or gzip."},
				},
				Action: mergeCommand,
			},
			{
				Name:    "split",
				Aliases: []string{"s"},
				Usage:   "Split a file into one file per read group.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "o", Value: ".", Usage: "Output directory."},
					&cli.StringFlag{Name: "c", Value: "gzip", Usage: "Compression method for binary output: none or gzip."},
				},
				Action: splitCommand,
			},
		},
	}
}

func parseMethodFlag(s string) (slow5.CompressMethod, error) {
	switch s {
	case "none":
		return slow5.CompressNone, nil
	case "gzip", "zlib", "":
		return slow5.CompressZlib, nil
	default:
		return 0, fmt.Errorf("unknown compression method %q", s)
	}
}

// getMatches expands every glob pattern in c's positional arguments into a
// deduplicated file list.
func getMatches(c *cli.Context) ([]string, error) {
	var matches []string
	seen := make(map[string]bool)
	for i := 0; i < c.Args().Len(); i++ {
		found, err := filepath.Glob(c.Args().Get(i))
		if err != nil {
			return nil, err
		}
		for _, m := range found {
			if !seen[m] {
				seen[m] = true
				matches = append(matches, m)
			}
		}
	}
	return matches, nil
}

func convertCommand(c *cli.Context) error {
	in := c.Args().Get(0)
	if in == "" {
		return fmt.Errorf("convert requires an input path")
	}
	method, err := parseMethodFlag(c.String("c"))
	if err != nil {
		return err
	}
	out := c.String("o")
	idx, err := slow5.Convert(in, out, method)
	if err != nil {
		return err
	}
	return slow5.Write(out, idx)
}

func indexCommand(c *cli.Context) error {
	in := c.Args().Get(0)
	if in == "" {
		return fmt.Errorf("index requires an input path")
	}
	format := slow5.FormatFromPath(in)
	idx, err := slow5.Build(in, format, maxLineLength)
	if err != nil {
		return err
	}
	return slow5.Write(in, idx)
}

func mergeCommand(c *cli.Context) error {
	matches, err := getMatches(c)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("merge requires at least one input path or pattern")
	}
	method, err := parseMethodFlag(c.String("c"))
	if err != nil {
		return err
	}

	first, err := slow5.OpenRead(matches[0])
	if err != nil {
		return err
	}
	header := first.Header()
	first.Close()

	out := c.String("o")
	writer, err := slow5.Create(out, header, method)
	if err != nil {
		return err
	}

	type parsed struct {
		rec *slow5.Record
		err error
	}
	records := make(chan parsed, 64)
	var g errgroup.Group
	for _, match := range matches {
		match := match
		g.Go(func() error {
			r, err := slow5.OpenRead(match)
			if err != nil {
				return err
			}
			defer r.Close()
			for {
				rec, err := r.Next()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				records <- parsed{rec: rec}
			}
		})
	}

	var fanErr error
	go func() {
		fanErr = g.Wait()
		close(records)
	}()

	var writeErr error
	for p := range records {
		if writeErr != nil {
			continue // drain the channel so the producers above never block on a full buffer
		}
		if err := writer.Add(p.rec); err != nil {
			writeErr = err
		}
	}

	if writeErr != nil {
		writer.Close()
		return writeErr
	}
	if fanErr != nil {
		writer.Close()
		return fanErr
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return slow5.Write(out, writer.Index())
}

func splitCommand(c *cli.Context) error {
	in := c.Args().Get(0)
	if in == "" {
		return fmt.Errorf("split requires an input path")
	}
	method, err := parseMethodFlag(c.String("c"))
	if err != nil {
		return err
	}
	outDir := c.String("o")

	r, err := slow5.OpenRead(in)
	if err != nil {
		return err
	}
	defer r.Close()
	header := r.Header()
	numGroups := header.NumReadGroups()

	buckets := make([][]*slow5.Record, numGroups)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if int(rec.ReadGroup) >= numGroups {
			return fmt.Errorf("record %q references out-of-range read group %d", rec.ReadID, rec.ReadGroup)
		}
		buckets[rec.ReadGroup] = append(buckets[rec.ReadGroup], rec)
	}

	ext := ".slow5"
	if slow5.FormatFromPath(in) == slow5.FormatBinary {
		ext = ".blow5"
	}

	var g errgroup.Group
	for group := 0; group < numGroups; group++ {
		group := group
		g.Go(func() error {
			return writeSplitGroup(header, buckets[group], group, outDir, ext, method)
		})
	}
	return g.Wait()
}

func writeSplitGroup(header *slow5.Header, recs []*slow5.Record, group int, outDir, ext string, method slow5.CompressMethod) error {
	groupHeader := slow5.NewHeader(header.Version)
	groupHeader.Schema = header.Schema
	names := header.AttributeNames()
	for _, name := range names {
		groupHeader.AddAttribute(name)
	}
	groupHeader.AddReadGroup()
	for _, name := range names {
		v, err := header.Get(name, group)
		if err != nil {
			return err
		}
		if v != "" {
			if err := groupHeader.Set(name, v, 0); err != nil {
				return err
			}
		}
	}

	outPath := filepath.Join(outDir, fmt.Sprintf("group_%d%s", group, ext))
	w, err := slow5.Create(outPath, groupHeader, method)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		rewritten := *rec
		rewritten.ReadGroup = 0
		if err := w.Add(&rewritten); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return slow5.Write(outPath, w.Index())
}
