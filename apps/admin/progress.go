package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/storage/schemafs"
)

var groupBys = map[string]report.GroupBy{
	"province": report.ByProvince,
	"ward":     report.ByWard,
	"type":     report.ByType,
}

func (cli *commandLine) progressCmd() *cobra.Command {
	var (
		groupParam    string
		categoryParam string
		schoolsFile   string
		filter        report.QueryFilter
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "progress [REPORT_TYPE]",
		Short: "Print the completion of the school reports per group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupBy, ok := groupBys[groupParam]
			if !ok {
				return errors.Errorf("invalid group %q: must be one of province, ward or type", groupParam)
			}
			category, err := report.ParseSchoolCategory(categoryParam)
			if err != nil {
				return err
			}
			if category != report.CategoryAll && schoolsFile == "" {
				return errors.New("--school-type needs a school directory (--schools)")
			}
			if len(args) == 1 {
				filter.ReportType = args[0]
			}

			repo, err := cli.reportRepository(cmd.Context())
			if err != nil {
				return err
			}
			reports, err := repo.FilterReports(cmd.Context(), filter)
			if err != nil {
				return errors.Wrap(err, "filtering reports")
			}
			var sum report.Summary
			if schoolsFile == "" {
				sum = report.Summarize(reports, groupBy, cli.conf.Reports.ExpectedFor)
			} else {
				schools, err := schemafs.ReadSchools(schoolsFile)
				if err != nil {
					return err
				}
				schools = report.FilterSchools(schools, filter, category)
				sum = report.SummarizeSchools(schools, reports, groupBy, cli.conf.Reports.ExpectedFor)
			}

			if asJSON || !cli.isTerminal {
				return cli.printProgressJSON(sum)
			}
			return cli.printProgressTable(sum)
		},
	}
	cmd.Flags().StringVarP(&groupParam, "group-by", "g", "ward", "Group the schools by province, ward or type")
	cmd.Flags().StringVar(&filter.Province, "province", "", "Only count the schools of this province")
	cmd.Flags().StringVar(&filter.Ward, "ward", "", "Only count the schools of this ward")
	cmd.Flags().StringVar(&schoolsFile, "schools", cli.conf.Reports.SchoolsFile, "School directory file: listed schools without a report count as todo")
	cmd.Flags().StringVar(&categoryParam, "school-type", "all", "Only count the schools of this type: all, cl, ncl or nl")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON, even on a terminal")
	return cmd
}

func (cli *commandLine) printProgressTable(sum report.Summary) error {
	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "GROUP\tTODO\tPENDING\tDONE\tTOTAL\t")
	row := func(name string, p report.Progress) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t\n", name, p.Todo, p.Pending, p.Done, p.Total)
	}
	for _, g := range sum.GroupNames() {
		row(g, sum.Groups[g])
	}
	fmt.Fprintln(w, "\t\t\t\t\t")
	row("ALL", sum.Total)
	return w.Flush()
}

func (cli *commandLine) printProgressJSON(sum report.Summary) error {
	type groupProgress struct {
		Group string `json:"group"`
		report.Progress
	}
	out := struct {
		Groups []groupProgress  `json:"groups"`
		Total  report.Progress `json:"total"`
	}{Total: sum.Total}
	for _, g := range sum.GroupNames() {
		out.Groups = append(out.Groups, groupProgress{Group: g, Progress: sum.Groups[g]})
	}
	if out.Groups == nil {
		out.Groups = []groupProgress{}
	}
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
