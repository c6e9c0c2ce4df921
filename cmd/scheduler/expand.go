package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/crm-scheduler/internal/recurrence"
)

type expandFlags struct {
	rrule      string
	anchor     string
	duration   time.Duration
	horizon    time.Duration
	exceptions []string
	overflow   string
}

func newExpandCommand() *cobra.Command {
	flags := &expandFlags{}
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the occurrences of a recurrence rule",
		Example: `  scheduler expand --rrule "FREQ=MONTHLY;COUNT=4" --anchor 2024-01-31T10:00:00+01:00
  scheduler expand --rrule "FREQ=WEEKLY;BYDAY=MO,WE" --anchor 2024-04-01T09:00:00Z --horizon 336h --except 2024-04-03`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			occurrences, loc, err := flags.expand()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, occ := range occurrences {
				fmt.Fprintf(out, "%d\t%s\t%s\n", occ.Index, occ.Start.In(loc).Format(time.RFC3339), occ.End.In(loc).Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.rrule, "rrule", "", "RRULE value, e.g. FREQ=WEEKLY;COUNT=5")
	cmd.Flags().StringVar(&flags.anchor, "anchor", "", "first occurrence as an RFC 3339 timestamp")
	cmd.Flags().DurationVar(&flags.duration, "duration", time.Hour, "length of every occurrence")
	cmd.Flags().DurationVar(&flags.horizon, "horizon", 90*24*time.Hour, "stop this long after the anchor")
	cmd.Flags().StringSliceVar(&flags.exceptions, "except", nil, "dates to skip as YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.overflow, "month-overflow", "clamp", "clamp or skip months lacking the anchor day")
	_ = cmd.MarkFlagRequired("rrule")
	_ = cmd.MarkFlagRequired("anchor")
	return cmd
}

func (f *expandFlags) expand() ([]recurrence.Occurrence, *time.Location, error) {
	anchor, err := time.Parse(time.RFC3339, strings.TrimSpace(f.anchor))
	if err != nil {
		return nil, nil, fmt.Errorf("anchor must be an RFC 3339 timestamp: %w", err)
	}
	if f.horizon <= 0 {
		return nil, nil, fmt.Errorf("horizon must be positive")
	}

	exceptions := make([]recurrence.Date, 0, len(f.exceptions))
	for _, value := range f.exceptions {
		date, err := recurrence.ParseDate(strings.TrimSpace(value))
		if err != nil {
			return nil, nil, err
		}
		exceptions = append(exceptions, date)
	}

	rule, err := recurrence.ParseRRule(f.rrule, exceptions)
	if err != nil {
		return nil, nil, err
	}
	if rule.MonthOverflow, err = recurrence.ParseMonthOverflow(f.overflow); err != nil {
		return nil, nil, err
	}

	occurrences, err := recurrence.ExpandIntervals(rule, anchor, anchor.Add(f.duration), anchor.Add(f.horizon))
	if err != nil {
		return nil, nil, err
	}
	return occurrences, anchor.Location(), nil
}
