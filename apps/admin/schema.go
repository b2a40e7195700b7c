package main

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/storage/schemafs"
)

func (cli *commandLine) schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the report schemas",
	}
	cmd.AddCommand(cli.schemaValidateCmd(), cli.schemaDiffCmd(), cli.schemaLoadCmd())
	return cmd
}

func readDocument(name string) (schema.Fields, error) {
	b, err := ioutil.ReadFile(name)
	if err != nil {
		return schema.Fields{}, errors.Wrapf(err, "reading %s", name)
	}
	return schemafs.ParseDocument(name, b)
}

func (cli *commandLine) printValidationErrors(err error) {
	verr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		return
	}
	for _, fe := range verr.Fields {
		fmt.Fprintf(cli.out, "  %s: %s\n", fe.Field, fe.Error)
	}
}

func (cli *commandLine) schemaValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate PATTERN...",
		Short: "Validate the schema documents matching the glob patterns (** supported)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var invalid int
			for _, pattern := range args {
				names, err := doublestar.FilepathGlob(pattern)
				if err != nil {
					return errors.Wrapf(err, "matching %s", pattern)
				}
				if len(names) == 0 {
					return errors.Errorf("%s: no schema documents", pattern)
				}
				for _, name := range names {
					if filepath.Base(name) == schemafs.SectionsFile {
						continue
					}
					doc, err := readDocument(name)
					if err == nil {
						err = schema.Validate(doc, cli.validate, cli.translator)
					}
					if err != nil {
						invalid++
						fmt.Fprintf(cli.out, "%s: %v\n", name, err)
						cli.printValidationErrors(err)
						continue
					}
					fmt.Fprintf(cli.out, "%s: ok\n", name)
				}
			}
			if invalid > 0 {
				return errors.Errorf("%d invalid schema document(s)", invalid)
			}
			return nil
		},
	}
}

func (cli *commandLine) schemaDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Show the changes between two schema documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := make([][]string, 2)
			for i, name := range args {
				doc, err := readDocument(name)
				if err != nil {
					return err
				}
				// both documents are printed the same way, whatever their format
				b, err := yaml.Marshal(doc)
				if err != nil {
					return errors.Wrapf(err, "encoding %s", name)
				}
				lines[i] = difflib.SplitLines(string(b))
			}

			diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        lines[0],
				B:        lines[1],
				FromFile: args[0],
				ToFile:   args[1],
				Context:  3,
			})
			if err != nil {
				return errors.Wrap(err, "diffing schemas")
			}
			if diff == "" {
				fmt.Fprintln(cli.out, "no changes")
				return nil
			}
			fmt.Fprint(cli.out, diff)
			return nil
		},
	}
}

func (cli *commandLine) schemaLoadCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "load DIR",
		Short: "Validate the schemas of a directory and store them in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := schemafs.Open(args[0])
			if err != nil {
				return err
			}

			// everything is validated before anything is stored
			type typeSchemas struct {
				reportType string
				docs       map[string]schema.Fields
			}
			var all []typeSchemas
			for _, reportType := range store.ReportTypes() {
				sections, err := store.Sections(ctx, reportType)
				if err != nil {
					return err
				}
				docs := make(map[string]schema.Fields, len(sections))
				for _, s := range sections {
					doc, err := store.Schema(ctx, reportType, s.SectionKey)
					if err != nil {
						return err
					}
					if err := schema.Validate(doc, cli.validate, cli.translator); err != nil {
						fmt.Fprintf(cli.out, "%s/%s: %v\n", reportType, s.SectionKey, err)
						cli.printValidationErrors(err)
						return errors.Wrapf(err, "%s/%s", reportType, s.SectionKey)
					}
					docs[s.SectionKey] = doc
				}
				all = append(all, typeSchemas{reportType: reportType, docs: docs})
			}

			writer, err := cli.schemaWriter(ctx)
			if err != nil {
				return err
			}
			for _, ts := range all {
				sections, _ := store.Sections(ctx, ts.reportType)
				if err := writer.Put(ctx, ts.reportType, sections, ts.docs, description); err != nil {
					return errors.Wrapf(err, "storing %s schemas", ts.reportType)
				}
				fmt.Fprintf(cli.out, "%s: %d section(s) loaded\n", ts.reportType, len(sections))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description stored along with the schemas")
	return cmd
}
