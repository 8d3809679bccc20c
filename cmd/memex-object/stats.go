package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/systemshift/memex-object/internal/metrics"
	"go.opencensus.io/stats/view"
)

func printStats(w io.Writer) {
	for _, v := range metrics.DefaultViews {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			log.Warnw("retrieve view", "view", v.Name, "err", err)
			continue
		}
		for _, row := range rows {
			var tags []string
			for _, t := range row.Tags {
				tags = append(tags, t.Key.Name()+"="+t.Value)
			}
			label := v.Name
			if len(tags) > 0 {
				label += "{" + strings.Join(tags, ",") + "}"
			}
			switch d := row.Data.(type) {
			case *view.CountData:
				fmt.Fprintf(w, "%s %d\n", label, d.Value)
			case *view.DistributionData:
				fmt.Fprintf(w, "%s count=%d mean=%.2fms max=%.2fms\n", label, d.Count, d.Mean, d.Max)
			}
		}
	}
}
