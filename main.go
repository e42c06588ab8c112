package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, environ())
	stop()
	os.Exit(code)
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// app carries what every command needs. The store is opened on first use
// and closed once the command returns.
type app struct {
	cfg     Config
	sources ConfigSources
	log     *slog.Logger
	out     io.Writer
	errOut  io.Writer

	store Datastore
}

// dbPath is the resolved location of the configured backend.
func (a *app) dbPath() string {
	path := truePath(a.cfg.Database)
	if a.cfg.DocumentBackend && strings.HasSuffix(path, ".sqlite") {
		path = strings.TrimSuffix(path, ".sqlite") + ".bleve"
	}
	return path
}

func (a *app) openStore(ctx context.Context) (Datastore, error) {
	if a.store != nil {
		return a.store, nil
	}

	var store Datastore = &SQLiteStore{}
	if a.cfg.DocumentBackend {
		store = &BleveStore{}
	}
	path := a.dbPath()
	sqlitePath := truePath(a.cfg.Database)
	firstDocumentOpen := a.cfg.DocumentBackend && path != sqlitePath &&
		!fileExists(path) && fileExists(sqlitePath)

	if err := store.Initialize(path); err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	a.log.Debug("store opened", "path", path, "document_backend", a.cfg.DocumentBackend)
	a.store = store

	if firstDocumentOpen {
		fmt.Fprintln(a.errOut, "First launch of document backend, importing the SQLite database...")
		n, err := importSQLite(ctx, sqlitePath, store, a.log)
		if err != nil {
			a.log.Error("import failed", "from", sqlitePath, "err", err)
		} else {
			fmt.Fprintf(a.errOut, "Imported %s tunes.\n", commatize(n))
		}
	}
	return store, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", "err", err)
	}
	a.store = nil
}

type globalFlags struct {
	fs            *flag.FlagSet
	workDir       string
	configPath    string
	root          string
	database      string
	docBackend    bool
	logLevel      string
	logFormat     string
	logFile       string
	insertTimeout time.Duration
	help          bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{fs: flag.NewFlagSet("tunedb", flag.ContinueOnError)}
	g.fs.SetInterspersed(false)
	g.fs.StringVarP(&g.workDir, "cwd", "C", "", "run as if started in this directory")
	g.fs.StringVarP(&g.configPath, "config", "c", "", "config file to load")
	g.fs.StringVarP(&g.root, "root", "r", "", "directory holding the numbered tune collections")
	g.fs.StringVar(&g.database, "database", "", "the location of the tune database")
	g.fs.BoolVar(&g.docBackend, "use-document-backend", false, "use the Bleve document backend")
	g.fs.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	g.fs.StringVar(&g.logFormat, "log-format", "", "text or json")
	g.fs.StringVar(&g.logFile, "log-file", "", "also append logs to this file")
	g.fs.DurationVar(&g.insertTimeout, "insert-timeout", 0, "bound each tune insert, 0 for none")
	g.fs.BoolVarP(&g.help, "help", "h", false, "show help")
	return g
}

// apply copies flags the user actually set over cfg.
func (g *globalFlags) apply(cfg *Config) {
	if g.fs.Changed("root") {
		cfg.Root = g.root
	}
	if g.fs.Changed("database") {
		cfg.Database = g.database
	}
	if g.fs.Changed("use-document-backend") {
		cfg.DocumentBackend = g.docBackend
	}
	if g.fs.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if g.fs.Changed("log-format") {
		cfg.LogFormat = g.logFormat
	}
	if g.fs.Changed("log-file") {
		cfg.LogFile = g.logFile
	}
	if g.fs.Changed("insert-timeout") {
		cfg.InsertTimeout = Duration(g.insertTimeout)
	}
}

func commands() []*Command {
	return []*Command{
		LoadCmd(),
		SearchCmd(),
		ShowCmd(),
		UpdateCmd(),
		DeleteCmd(),
		StatsCmd(),
		ExportCmd(),
		PrintConfigCmd(),
	}
}

// run is the whole program minus process setup. Returns the exit code.
func run(ctx context.Context, args []string, out, errOut io.Writer, env map[string]string) int {
	g := newGlobalFlags()
	g.fs.SetOutput(io.Discard)
	if err := g.fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		printUsage(errOut, g.fs)
		return 1
	}
	if g.help {
		printUsage(out, g.fs)
		return 0
	}

	rest := g.fs.Args()
	name := "load"
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	if name == "help" {
		printUsage(out, g.fs)
		return 0
	}

	var cmd *Command
	for _, c := range commands() {
		if c.Name() == name {
			cmd = c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(errOut, "error: %v: %s\n", errUnknownCommand, name)
		printUsage(errOut, g.fs)
		return 1
	}

	workDir := g.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(errOut, "error: cannot get working directory:", err)
			return 1
		}
		workDir = wd
	}

	cfg, sources, err := LoadConfig(workDir, g.configPath, env)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	g.apply(&cfg)
	if err := validateConfig(cfg); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	log, logCloser, err := InitLogging(cfg, errOut)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer logCloser.Close()

	a := &app{cfg: cfg, sources: sources, log: log, out: out, errOut: errOut}
	defer a.close()

	return cmd.Run(ctx, a, rest)
}

func printUsage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: tunedb [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Load ABC tune books into a searchable database.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands() {
		fmt.Fprintln(w, c.HelpLine())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "With no command, load is run.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	var buf strings.Builder
	global.SetOutput(&buf)
	global.PrintDefaults()
	fmt.Fprint(w, buf.String())
}

// parseTuneID parses a tune id argument.
func parseTuneID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errIDRequired
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, args[0])
	}
	return id, nil
}

func commatize(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var res []string
	for len(s) > 3 {
		res = append(res, s[len(s)-3:])
		s = s[:len(s)-3]
	}
	res = append(res, s)
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return strings.Join(res, ",")
}

func isNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
