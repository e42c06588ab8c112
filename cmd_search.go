package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	flag "github.com/spf13/pflag"
)

type searchOptions struct {
	query     string
	asJSON    bool
	showPaths bool
	indent    int
	limit     int
	syntax    bool
}

func addTreeFlags(fs *flag.FlagSet, opts *searchOptions) {
	fs.StringVarP(&opts.query, "query", "q", "", "search terms, see --syntax")
	fs.BoolVar(&opts.showPaths, "show-paths", false, "include id and path of every tune")
	fs.IntVarP(&opts.indent, "indent", "i", 2, "number of spaces to indent JSON by")
}

// SearchCmd returns the search command.
func SearchCmd() *Command {
	var opts searchOptions
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	addTreeFlags(fs, &opts)
	fs.BoolVar(&opts.asJSON, "json", false, "print matches as a collection/type JSON tree")
	fs.IntVarP(&opts.limit, "limit", "n", 0, "show at most this many tunes, 0 for all")
	fs.BoolVar(&opts.syntax, "syntax", false, "show the query syntax guide")

	return &Command{
		Flags: fs,
		Usage: "search [-q QUERY] [flags]",
		Short: "Find tunes by title, type, key, meter or collection",
		Exec: func(ctx context.Context, a *app, args []string) error {
			if opts.syntax {
				fmt.Fprintln(a.out, querySyntax)
				return nil
			}
			if opts.query == "" && len(args) > 0 {
				opts.query = args[0]
			}
			return execSearch(ctx, a, opts)
		},
	}
}

func execSearch(ctx context.Context, a *app, opts searchOptions) error {
	tunes, err := searchTunes(ctx, a, opts.query, opts.limit)
	if err != nil {
		return err
	}

	if opts.asJSON {
		data, err := jsonizer(tunes, opts.showPaths, opts.indent)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(data))
		return nil
	}

	if len(tunes) == 0 {
		fmt.Fprintln(a.out, "No tunes found.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOLL\tX\tTITLE\tTYPE\tMETER\tKEY")
	for _, t := range tunes {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.CollectionID, t.ReferenceNumber, t.Title, t.Type, t.Meter, t.KeySignature)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\n%s tunes\n", commatize(len(tunes)))
	return nil
}

func searchTunes(ctx context.Context, a *app, input string, limit int) ([]Tune, error) {
	q, err := ParseQuery(input)
	if err != nil {
		return nil, err
	}
	q.Limit = limit

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	return store.Search(ctx, q)
}

// ExportCmd returns the export command.
func ExportCmd() *Command {
	var opts searchOptions
	var output string
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	addTreeFlags(fs, &opts)
	fs.StringVarP(&output, "output", "o", "", "file to write (required)")

	return &Command{
		Flags: fs,
		Usage: "export -o FILE [-q QUERY] [flags]",
		Short: "Write matching tunes to a JSON file",
		Long: `Write the matching tunes, all of them without a query, to FILE as a
JSON tree of collection -> type -> titles. The file is replaced atomically.`,
		Exec: func(ctx context.Context, a *app, _ []string) error {
			if output == "" {
				return errors.New("--output is required")
			}
			tunes, err := searchTunes(ctx, a, opts.query, 0)
			if err != nil {
				return err
			}
			if err := exportJSON(truePath(output), tunes, opts.showPaths, opts.indent); err != nil {
				return fmt.Errorf("exporting: %w", err)
			}
			fmt.Fprintf(a.out, "Exported %s tunes to %s\n", commatize(len(tunes)), output)
			return nil
		},
	}
}

// printJSON writes v indented to the command output.
func printJSON(a *app, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(data))
	return nil
}
