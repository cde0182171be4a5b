package datalog

import (
	"github.com/pkg/errors"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lucaslui/hems/gait-processor/internal/model"
)

type ParquetRow struct {
	Timestamp int64  `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ClientID  string `parquet:"name=client_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Message   string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value     string `parquet:"name=value, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toParquetRow(r Row) ParquetRow {
	return ParquetRow{
		Timestamp: r.Timestamp.UTC().UnixMilli(),
		ClientID:  r.ClientID,
		Message:   r.Message,
		Value:     model.FormatValue(r.Value),
	}
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "ZSTD":
		return parquet.CompressionCodec_ZSTD
	case "GZIP":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_SNAPPY
	}
}

// WriteParquet writes rows to a local parquet file at path.
func WriteParquet(path string, rows []Row, compression string) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}

	pw, err := writer.NewParquetWriter(fw, new(ParquetRow), 1)
	if err != nil {
		_ = fw.Close()
		return errors.Wrap(err, "parquet writer")
	}
	pw.CompressionType = compressionCodec(compression)

	for i := range rows {
		if err := pw.Write(toParquetRow(rows[i])); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return errors.Wrapf(err, "write parquet row %d", i)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return errors.Wrap(err, "finish parquet")
	}
	return errors.Wrap(fw.Close(), "close parquet file")
}
