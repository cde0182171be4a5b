package datalog

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/lucaslui/hems/gait-processor/internal/model"
)

// TimestampLayout matches the spreadsheet export of the notebook client.
const TimestampLayout = "2006-01-02 15:04:05.000000"

func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for i, r := range rows {
		record := []string{
			r.Timestamp.Format(TimestampLayout),
			r.ClientID,
			r.Message,
			model.FormatValue(r.Value),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write csv row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
