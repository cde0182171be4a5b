package datalog

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/lucaslui/hems/gait-processor/internal/model"
)

// RenderTable prints rows as an aligned table, one line per row, prefixed by its log index.
// first is the index of rows[0] in the full log.
func RenderTable(w io.Writer, rows []Row, first int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\t%s\n", strings.Join(Columns, "\t"))
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			first+i,
			r.Timestamp.Format(TimestampLayout),
			r.ClientID,
			r.Message,
			model.FormatValue(r.Value),
		)
	}
	return tw.Flush()
}
