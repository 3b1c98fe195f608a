// Command ivmdb is a thin ambient harness around the core engine: it reads
// a CSV update script (one `table,x,y` or `x,y` line at a time) from a
// file argument or stdin and replays each line through a query.Engine, or
// accepts the same lines typed at an interactive readline prompt. It is
// not part of the core and carries none of the core's invariants.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ivmdb/ivmdb/internal/config"
	"github.com/ivmdb/ivmdb/internal/database"
	"github.com/ivmdb/ivmdb/internal/query"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (storage + query sections)")
		scriptPath = flag.String("script", "", "CSV update script to replay (default: stdin)")
		naive      = flag.Bool("naive", false, "use the naive (recompute-on-every-update) query variant")
		interact   = flag.Bool("i", false, "interactive readline mode instead of batch replay")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivmdb: %v\n", err)
		os.Exit(1)
	}

	dbPath := cfg.Storage.File
	if dbPath == "" {
		dbPath = "ivmdb.pages"
	}
	db, err := database.Open(dbPath, cfg.Storage.PageSize, cfg.Storage.PageCount, cfg.Storage.PoolSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivmdb: open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	tables := make([]query.Table, 0, len(cfg.Query.Tables))
	for _, spec := range cfg.Query.Tables {
		rel, err := db.CreateTable(spec.Name, spec.Order1, spec.Order2)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ivmdb: %v\n", err)
			os.Exit(1)
		}
		tables = append(tables, query.Table{Name: spec.Name, Rel: rel})
	}
	if len(tables) == 0 {
		fmt.Fprintln(os.Stderr, "ivmdb: no tables configured; see query.tables in the config file")
		os.Exit(1)
	}

	eng, err := buildQueryEngine(db, cfg, tables, *naive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivmdb: %v\n", err)
		os.Exit(1)
	}

	h := &harness{db: db, tables: tables, eng: eng}

	if *interact {
		h.repl()
		return
	}

	var r io.Reader = os.Stdin
	if *scriptPath != "" {
		f, err := os.Open(*scriptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ivmdb: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := h.replay(r); err != nil {
		fmt.Fprintf(os.Stderr, "ivmdb: %v\n", err)
		os.Exit(1)
	}
	h.report()
}

// queryEngine is the minimal surface every query shape (count or
// equijoin, naive or incremental) shares, letting the harness stay
// query-agnostic everywhere except the one switch that constructs one.
type queryEngine interface {
	Recompute() error
	Update(table string, op query.Op, x, y int32) error
}

func buildQueryEngine(db *database.Context, cfg *config.Config, tables []query.Table, naive bool) (queryEngine, error) {
	switch cfg.Query.Kind {
	case "equijoin":
		if naive {
			return query.NewNaiveEquiJoin(db.Pool(), tables...)
		}
		return query.NewEquiJoin(db.Pool(), tables...)
	case "count", "":
		if naive {
			return query.NewNaiveCount(tables...), nil
		}
		return query.NewCount(tables...), nil
	default:
		return nil, fmt.Errorf("unknown query kind %q", cfg.Query.Kind)
	}
}

// harness ties a database context, its registered tables, and a query
// engine together for both batch replay and the interactive REPL.
type harness struct {
	db     *database.Context
	tables []query.Table
	eng    queryEngine
}

func (h *harness) tableNamed(name string) (query.Table, bool) {
	for _, t := range h.tables {
		if t.Name == name {
			return t, true
		}
	}
	return query.Table{}, false
}

// replay reads CSV lines from r, one `table,x,y` or `x,y` line at a time,
// and applies each as an insert into the named relation (or the sole
// registered table, for two-field lines) plus the corresponding query
// update. Parse errors and unknown tables end reading outright rather
// than being skipped or retried.
func (h *harness) replay(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		table, x, y, ok := h.parseLine(line)
		if !ok {
			break
		}
		rel, found := h.tableNamed(table)
		if !found {
			break
		}
		if _, err := rel.Rel.Insert(x, y); err != nil {
			return fmt.Errorf("insert %s(%d,%d): %w", table, x, y, err)
		}
		if err := h.eng.Update(table, query.Insert, x, y); err != nil {
			return fmt.Errorf("update %s(%d,%d): %w", table, x, y, err)
		}
	}
	return nil
}

func (h *harness) parseLine(line string) (table string, x, y int32, ok bool) {
	fields := strings.Split(line, ",")
	switch len(fields) {
	case 2:
		if len(h.tables) != 1 {
			return "", 0, 0, false
		}
		table = h.tables[0].Name
		fields = []string{fields[0], fields[1]}
	case 3:
		table = strings.TrimSpace(fields[0])
		fields = fields[1:]
	default:
		return "", 0, 0, false
	}
	xi, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	yi, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	return table, int32(xi), int32(yi), true
}

// report prints the engine's current result: the running count, or the
// view's current tuple set for an equijoin.
func (h *harness) report() {
	switch e := h.eng.(type) {
	case interface{ Value() int64 }:
		fmt.Printf("count = %d\n", e.Value())
	case interface{ Tuples() ([][]int32, error) }:
		tuples, err := e.Tuples()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ivmdb: %v\n", err)
			return
		}
		for _, t := range tuples {
			fmt.Println(formatTuple(t))
		}
	}
}

func formatTuple(t []int32) string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}

// repl runs an interactive readline session accepting the same line
// formats replay consumes, typed one at a time, echoing the engine's
// result after each.
func (h *harness) repl() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ivmdb> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivmdb: readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	fmt.Println("ivmdb interactive mode; lines are `table,x,y` or `x,y`; \\q to quit")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "\\q" || line == "quit" || line == "exit" {
			return
		}
		if line == "\\report" {
			h.report()
			continue
		}

		table, x, y, ok := h.parseLine(line)
		if !ok {
			fmt.Println("error: could not parse line")
			continue
		}
		rel, found := h.tableNamed(table)
		if !found {
			fmt.Printf("error: unknown table %q\n", table)
			continue
		}
		if _, err := rel.Rel.Insert(x, y); err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if err := h.eng.Update(table, query.Insert, x, y); err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		h.report()
	}
}
