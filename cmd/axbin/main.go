package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/axbin/pkg/axlf"
)

func main() {
	app := &cli.Command{
		Name:  "axbin",
		Usage: "Inspect and modify AXLF device images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Input image to read",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output image to write after all modifications are applied",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Rebuild the input image from its mirror metadata instead of the fixed header",
			},
			&cli.BoolFlag{
				Name:  "skip-uuid-insertion",
				Usage: "Do not generate a fresh image UUID on write (reproducible output)",
			},
			&cli.BoolFlag{
				Name:  "info",
				Usage: "Print a report of the resulting image",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},

			&cli.StringSliceFlag{
				Name:  "add-section",
				Usage: "Add a section: <SECTION>:<FORMAT>:<FILE> (empty section with JSON adds every node of the file)",
			},
			&cli.StringSliceFlag{
				Name:  "add-merge-section",
				Usage: "Merge JSON metadata into a section: <SECTION>:JSON:<FILE>",
			},
			&cli.StringSliceFlag{
				Name:  "append-section",
				Usage: "Append JSON metadata to existing sections: :JSON:<FILE>",
			},
			&cli.StringSliceFlag{
				Name:  "replace-section",
				Usage: "Replace a section payload: <SECTION>:<FORMAT>:<FILE>",
			},
			&cli.StringSliceFlag{
				Name:  "remove-section",
				Usage: "Remove a section: <SECTION> or <SECTION>[<INDEX>]",
			},
			&cli.StringSliceFlag{
				Name:  "dump-section",
				Usage: "Dump a section payload: <SECTION>:<FORMAT>:<FILE> (empty section with JSON dumps every JSON node)",
			},
			&cli.StringSliceFlag{
				Name:  "add-pskernel",
				Usage: "Add a PS kernel: <SYMBOL>:<INSTANCES>:<SHARED_LIBRARY>",
			},
			&cli.StringSliceFlag{
				Name:  "key-value",
				Usage: "Set a key-value pair: [USER|SYS]:<KEY>:<VALUE>",
			},
			&cli.StringSliceFlag{
				Name:  "remove-key",
				Usage: "Remove a USER key from the key-value metadata",
			},
		},
		Action: run,
		Commands: []*cli.Command{
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := LoadConfig()
	log := buildLogger(cmd, cfg)

	if !anyWork(cmd) {
		return cli.ShowAppHelp(cmd)
	}

	c := axlf.New(log)
	if input := cmd.String("input"); input != "" {
		if err := c.ReadFromFile(input, cmd.Bool("migrate")); err != nil {
			return err
		}
	}

	for _, target := range cmd.StringSlice("remove-section") {
		if err := c.RemoveSection(target); err != nil {
			return err
		}
	}
	for _, encoded := range cmd.StringSlice("add-section") {
		d, err := axlf.ParseDescriptor(encoded)
		if err != nil {
			return err
		}
		if d.Section == "" {
			err = c.AddSections(d)
		} else {
			err = c.AddSection(d)
		}
		if err != nil {
			return err
		}
	}
	for _, encoded := range cmd.StringSlice("add-merge-section") {
		d, err := axlf.ParseDescriptor(encoded)
		if err != nil {
			return err
		}
		if err := c.MergeSection(d); err != nil {
			return err
		}
	}
	for _, encoded := range cmd.StringSlice("append-section") {
		d, err := axlf.ParseDescriptor(encoded)
		if err != nil {
			return err
		}
		if err := c.AppendSections(d); err != nil {
			return err
		}
	}
	for _, encoded := range cmd.StringSlice("replace-section") {
		d, err := axlf.ParseDescriptor(encoded)
		if err != nil {
			return err
		}
		if err := c.ReplaceSection(d); err != nil {
			return err
		}
	}
	for _, encoded := range cmd.StringSlice("add-pskernel") {
		if err := c.AddPSKernel(encoded); err != nil {
			return err
		}
	}
	for _, encoded := range cmd.StringSlice("key-value") {
		if err := c.SetKeyValue(encoded); err != nil {
			return err
		}
	}
	for _, key := range cmd.StringSlice("remove-key") {
		if err := c.RemoveKey(key); err != nil {
			return err
		}
	}

	output := cmd.String("output")
	if output != "" {
		if err := c.WriteToFile(output, cmd.Bool("skip-uuid-insertion")); err != nil {
			return err
		}
	}

	for _, encoded := range cmd.StringSlice("dump-section") {
		d, err := axlf.ParseDescriptor(encoded)
		if err != nil {
			return err
		}
		if d.Section == "" {
			err = c.DumpSections(d)
		} else {
			err = c.DumpSection(d)
		}
		if err != nil {
			return err
		}
	}

	if cmd.Bool("info") {
		path := output
		if path == "" {
			path = cmd.String("input")
		}
		if path == "" {
			return fmt.Errorf("axbin: --info needs an input or output image")
		}
		img, err := axlf.OpenImage(path)
		if err != nil {
			return err
		}
		defer func() { _ = img.Close() }()
		return img.Report(os.Stdout, true)
	}
	return nil
}

// anyWork reports whether the invocation carries at least one operation.
func anyWork(cmd *cli.Command) bool {
	if cmd.String("input") != "" || cmd.String("output") != "" || cmd.Bool("info") {
		return true
	}
	for _, name := range []string{
		"add-section", "add-merge-section", "append-section", "replace-section",
		"remove-section", "dump-section", "add-pskernel", "key-value", "remove-key",
	} {
		if len(cmd.StringSlice(name)) > 0 {
			return true
		}
	}
	return false
}
