package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/config"
	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/maksimkurb/keen-dns/src/internal/storage"
	"github.com/maksimkurb/keen-dns/src/internal/utils"
)

func CreateQueriesCommand() *QueriesCommand {
	qc := &QueriesCommand{
		fs:  flag.NewFlagSet("queries", flag.ExitOnError),
		out: os.Stdout,
	}

	qc.fs.IntVar(&qc.Limit, "limit", 50, "Number of queries to print, 0 for all")
	qc.fs.BoolVar(&qc.JSON, "json", false, "Print queries as JSON")

	return qc
}

// QueriesCommand prints the most recent persisted queries.
type QueriesCommand struct {
	fs    *flag.FlagSet
	cfg   *config.Config
	ctx   *AppContext
	out   io.Writer
	Limit int
	JSON  bool
}

func (q *QueriesCommand) Name() string {
	return q.fs.Name()
}

func (q *QueriesCommand) Init(args []string, ctx *AppContext) error {
	q.ctx = ctx

	if err := q.fs.Parse(args); err != nil {
		return err
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		q.cfg = cfg
	}

	return nil
}

func (q *QueriesCommand) Run() error {
	path := q.cfg.GetAbsDatabasePath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("query database not found: %s", path)
	}

	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer utils.CloseOrWarn(store)

	records, err := store.Recent(q.Limit)
	if err != nil {
		return err
	}

	if q.JSON {
		enc := json.NewEncoder(q.out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	printQueries(q.out, records)
	return nil
}

// printQueries writes one line per record, newest first.
func printQueries(out io.Writer, records []*models.QueryRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tID\tTYPE\tNAME\tSERVER\tSOURCE\tLATENCY\tANSWERS")

	for _, r := range records {
		latency := "-"
		if r.Done() {
			latency = r.Latency().Round(time.Millisecond).String()
		}

		answers := make([]string, 0, len(r.Responses))
		for _, a := range r.Responses {
			answers = append(answers, a.Value)
		}
		answerText := strings.Join(answers, ", ")
		if r.BlockedByUpstream {
			answerText += " (blocked)"
		}

		server := r.AskedServer
		if server == "" {
			server = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.QuestionTime.Local().Format(time.DateTime),
			r.TransactionID,
			models.TypeName(r.QuestionType),
			r.QuestionName,
			server,
			r.ResponseSource,
			latency,
			answerText,
		)
	}

	w.Flush()
}
