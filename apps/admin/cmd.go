package main

import (
	"context"
	"io"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/storage/database"
	mongorepos "github.com/trezcool/schoolstats/storage/database/mongo"
	sqlxrepos "github.com/trezcool/schoolstats/storage/database/sqlx"
)

// schemaWriter stores the schemas of a report type.
type schemaWriter interface {
	Put(ctx context.Context, reportType string, sections []report.Section, docs map[string]schema.Fields, description string) error
}

type commandLine struct {
	conf       *core.Config
	out        io.Writer
	isTerminal bool
	validate   *validator.Validate
	translator ut.Translator

	// opened on first use
	db      *sqlx.DB
	reports report.Repository
	schemas schemaWriter
	closers []func() error
}

func newCommandLine(conf *core.Config, out io.Writer, isTerminal bool) *commandLine {
	validate, translator := core.NewValidator()
	schema.InitValidators(validate, translator)
	return &commandLine{
		conf:       conf,
		out:        out,
		isTerminal: isTerminal,
		validate:   validate,
		translator: translator,
	}
}

func (cli *commandLine) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         cli.conf.AppName + " administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(cli.out)
	cmd.AddCommand(
		cli.migrateCmd(),
		cli.schemaCmd(),
		cli.progressCmd(),
		cli.tokenCmd(),
	)
	return cmd
}

// run executes the command line args, without the program name.
func (cli *commandLine) run(args []string) error {
	cmd := cli.rootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func (cli *commandLine) close(logger core.Logger) {
	for _, closeFn := range cli.closers {
		if err := closeFn(); err != nil {
			logger.Error("closing connection", err)
		}
	}
	cli.closers = nil
}

func (cli *commandLine) sqlDB(ctx context.Context) (*sqlx.DB, error) {
	if cli.db != nil {
		return cli.db, nil
	}
	db, err := database.Open(ctx, cli.conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	cli.db = db
	cli.closers = append(cli.closers, db.Close)
	return db, nil
}

func (cli *commandLine) reportRepository(ctx context.Context) (report.Repository, error) {
	if cli.reports != nil {
		return cli.reports, nil
	}
	switch cli.conf.Database.Engine {
	case "memory":
		return nil, errors.New("the memory engine keeps no reports between runs")
	case "mongo":
		db, err := mongorepos.Open(ctx, cli.conf.Database)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		cli.closers = append(cli.closers, func() error { return db.Client().Disconnect(context.Background()) })
		cli.reports = mongorepos.NewReportRepository(db)
	default:
		db, err := cli.sqlDB(ctx)
		if err != nil {
			return nil, err
		}
		cli.reports = sqlxrepos.NewReportRepository(db)
	}
	return cli.reports, nil
}

func (cli *commandLine) schemaWriter(ctx context.Context) (schemaWriter, error) {
	if cli.schemas != nil {
		return cli.schemas, nil
	}
	db, err := cli.sqlDB(ctx)
	if err != nil {
		return nil, err
	}
	cli.schemas = sqlxrepos.NewSchemaSource(db)
	return cli.schemas, nil
}
