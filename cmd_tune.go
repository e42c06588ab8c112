package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// ShowCmd returns the show command.
func ShowCmd() *Command {
	var asJSON bool
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.BoolVar(&asJSON, "json", false, "print the tune as JSON")

	return &Command{
		Flags: fs,
		Usage: "show <id>",
		Short: "Show one tune with its ABC text",
		Exec: func(ctx context.Context, a *app, args []string) error {
			id, err := parseTuneID(args)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			t, err := store.GetTune(ctx, id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a, t)
			}
			printTune(a, t)
			return nil
		},
	}
}

func printTune(a *app, t Tune) {
	fmt.Fprintf(a.out, "id: %d\n", t.ID)
	fmt.Fprintf(a.out, "collection: %d\n", t.CollectionID)
	fmt.Fprintf(a.out, "reference_number: %s\n", t.ReferenceNumber)
	fmt.Fprintf(a.out, "title: %s\n", t.Title)
	fmt.Fprintf(a.out, "type: %s\n", t.Type)
	fmt.Fprintf(a.out, "meter: %s\n", t.Meter)
	fmt.Fprintf(a.out, "key_signature: %s\n", t.KeySignature)
	fmt.Fprintf(a.out, "file: %s\n", t.FilePath)
	if !t.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "created_at: %s\n", t.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(a.out)
	fmt.Fprint(a.out, t.RawText)
	if !strings.HasSuffix(t.RawText, "\n") {
		fmt.Fprintln(a.out)
	}
}

// parseChanges turns field=value pairs into an update.
func parseChanges(pairs []string) (map[TuneField]string, error) {
	changes := make(map[TuneField]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--set wants field=value, got %q", pair)
		}
		field, err := ParseTuneField(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		changes[field] = value
	}
	if len(changes) == 0 {
		return nil, errNoChanges
	}
	return changes, nil
}

// UpdateCmd returns the update command.
func UpdateCmd() *Command {
	var sets []string
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.StringArrayVar(&sets, "set", nil, "field=value, repeatable; fields: reference_number, title, type, meter, key_signature")

	return &Command{
		Flags: fs,
		Usage: "update <id> --set field=value...",
		Short: "Change fields of a tune",
		Exec: func(ctx context.Context, a *app, args []string) error {
			id, err := parseTuneID(args)
			if err != nil {
				return err
			}
			changes, err := parseChanges(sets)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if err := store.UpdateTune(ctx, id, changes); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated tune %d\n", id)
			return nil
		},
	}
}

// DeleteCmd returns the delete command.
func DeleteCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage: "delete <id>",
		Short: "Delete a tune",
		Exec: func(ctx context.Context, a *app, args []string) error {
			id, err := parseTuneID(args)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if err := store.DeleteTune(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted tune %d\n", id)
			return nil
		},
	}
}

// StatsCmd returns the stats command.
func StatsCmd() *Command {
	var top int
	var asJSON bool
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.IntVarP(&top, "top", "n", 5, "number of types and keys to list")
	fs.BoolVar(&asJSON, "json", false, "print statistics as JSON")

	return &Command{
		Flags: fs,
		Usage: "stats [--top N]",
		Short: "Summarize the loaded tunes",
		Exec: func(ctx context.Context, a *app, _ []string) error {
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			st, err := store.Stats(ctx, top)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a, st)
			}
			printStats(a, st)

			last, err := store.LastRun(ctx)
			switch {
			case isNotFound(err):
			case err != nil:
				return err
			default:
				fmt.Fprintf(a.out, "\nLast load: %s, %s tunes from %d/%d files (run %s)\n",
					last.FinishedAt.Local().Format(time.DateTime), commatize(last.TunesLoaded),
					last.FilesProcessed, last.FilesTotal, last.RunID)
			}
			return nil
		},
	}
}

func printStats(a *app, st Stats) {
	fmt.Fprintf(a.out, "Total tunes:        %s\n", commatize(st.TotalTunes))
	fmt.Fprintf(a.out, "Collections:        %d\n", st.TotalCollections)
	fmt.Fprintf(a.out, "Distinct types:     %d\n", st.TotalTypes)
	fmt.Fprintf(a.out, "Distinct keys:      %d\n", st.TotalKeys)
	fmt.Fprintf(a.out, "Most common type:   %s\n", st.MostCommonType)
	fmt.Fprintf(a.out, "Most common key:    %s\n", st.MostCommonKey)

	if len(st.PerCollection) > 0 {
		fmt.Fprintln(a.out, "\nTunes per collection:")
		for _, c := range st.PerCollection {
			fmt.Fprintf(a.out, "  %-6d %s\n", c.CollectionID, commatize(c.Count))
		}
	}
	printRanking(a, "Top types:", st.TopTypes)
	printRanking(a, "Top keys:", st.TopKeys)
}

func printRanking(a *app, heading string, counts []ValueCount) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(a.out, "\n"+heading)
	for _, vc := range counts {
		fmt.Fprintf(a.out, "  %-20s %s\n", vc.Value, commatize(vc.Count))
	}
}

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, a *app, _ []string) error {
			text, err := FormatConfig(a.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, text)
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out, "# sources")
			if a.sources.Global == "" && a.sources.Project == "" {
				fmt.Fprintln(a.out, "(defaults only)")
				return nil
			}
			if a.sources.Global != "" {
				fmt.Fprintln(a.out, "global_config="+a.sources.Global)
			}
			if a.sources.Project != "" {
				fmt.Fprintln(a.out, "project_config="+a.sources.Project)
			}
			return nil
		},
	}
}
