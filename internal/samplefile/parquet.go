package samplefile

import (
	"fmt"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"ridemetrics/internal/analysis"
)

const parquetParallelism = 4

// sampleRow is the canonical on-disk layout of one sample.
type sampleRow struct {
	Timestamp int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Power     *float64 `parquet:"name=power, type=DOUBLE, repetitiontype=OPTIONAL"`
	HeartRate *int32   `parquet:"name=heart_rate, type=INT32, repetitiontype=OPTIONAL"`
	Speed     *float64 `parquet:"name=speed, type=DOUBLE, repetitiontype=OPTIONAL"`
	Distance  *float64 `parquet:"name=distance, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// WriteParquet writes samples as a canonical SNAPPY-compressed sample file.
func WriteParquet(path string, points []analysis.SamplePoint) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), parquetParallelism)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, p := range points {
		if err := pw.Write(rowFromPoint(p)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("write sample row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

// ReadParquet reads a canonical sample file. Rows with a zero timestamp are
// dropped; ErrNoTimestamps is returned when none remain.
func ReadParquet(path string) ([]analysis.SamplePoint, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(sampleRow), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("open parquet reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]sampleRow, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("read sample rows: %w", err)
		}
	}

	points := make([]analysis.SamplePoint, 0, len(rows))
	for _, r := range rows {
		if r.Timestamp == 0 {
			continue
		}
		points = append(points, pointFromRow(r))
	}
	if len(points) == 0 {
		return nil, ErrNoTimestamps
	}
	return points, nil
}

func rowFromPoint(p analysis.SamplePoint) sampleRow {
	row := sampleRow{
		Power:    finiteOrNil(p.Power),
		Speed:    finiteOrNil(p.Speed),
		Distance: finiteOrNil(p.Distance),
	}
	if !p.Timestamp.IsZero() {
		row.Timestamp = p.Timestamp.UnixMilli()
	}
	if p.HeartRate != nil {
		hr := int32(*p.HeartRate)
		row.HeartRate = &hr
	}
	return row
}

func pointFromRow(r sampleRow) analysis.SamplePoint {
	p := analysis.SamplePoint{
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Power:     r.Power,
		Speed:     r.Speed,
		Distance:  r.Distance,
	}
	if r.HeartRate != nil {
		hr := int(*r.HeartRate)
		p.HeartRate = &hr
	}
	return p
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	x := *v
	return &x
}
