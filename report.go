package horunner

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// Summary aggregates a history.
type Summary struct {
	Total   int
	OK      int
	Fail    int
	Pending int
	Best    *TrialRecord
}

// Summarize computes a Summary of trials.
func Summarize(trials []TrialRecord) Summary {
	var s Summary

	s.Total = len(trials)

	for _, t := range trials {
		switch t.Result.Status {
		case StatusOK:
			s.OK++
		case StatusFail:
			s.Fail++
		case StatusPending:
			s.Pending++
		}
	}

	if best, ok := bestTrial(trials); ok {
		s.Best = &best
	}

	return s
}

// SortByLoss returns the trials ordered by ascending loss. Trials without a
// usable loss go last, in index order.
func SortByLoss(trials []TrialRecord) []TrialRecord {
	out := make([]TrialRecord, len(trials))
	for i, t := range trials {
		out[i] = t.clone()
	}

	sort.SliceStable(out, func(i, j int) bool {
		ui, uj := out[i].Result.usable(), out[j].Result.usable()

		switch {
		case !ui && !uj:
			return out[i].Index < out[j].Index
		case !ui:
			return false
		case !uj:
			return true
		}

		return *out[i].Result.Loss < *out[j].Result.Loss
	})

	return out
}

// WriteReport prints a summary line followed by the trials sorted by loss.
func WriteReport(w io.Writer, trials []TrialRecord) error {
	s := Summarize(trials)

	if _, err := fmt.Fprintf(w, "trials: %d  ok: %d  fail: %d\n", s.Total, s.OK, s.Fail); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "RANK\tINDEX\tSTATUS\tLOSS\tPARAMS")

	for rank, t := range SortByLoss(trials) {
		loss := "-"
		if t.Result.Loss != nil {
			loss = fmt.Sprintf("%.6g", *t.Result.Loss)
		}

		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", rank, t.Index, t.Result.Status, loss, FormatParams(t.Params))
	}

	return tw.Flush()
}
