package samplefile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// ActivityRow is one activity in an export file
type ActivityRow struct {
	ID               int64    `parquet:"name=id, type=INT64"`
	FileName         string   `parquet:"name=file_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartTime        int64    `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	DurationS        *int64   `parquet:"name=duration, type=INT64, repetitiontype=OPTIONAL"`
	DistanceKm       *float64 `parquet:"name=distance_km, type=DOUBLE, repetitiontype=OPTIONAL"`
	AvgPower         *float64 `parquet:"name=avg_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	AvgHeartRate     *float64 `parquet:"name=avg_heart_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	NormalizedPower  *float64 `parquet:"name=normalized_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	TSS              *float64 `parquet:"name=tss, type=DOUBLE, repetitiontype=OPTIONAL"`
	IntensityFactor  *float64 `parquet:"name=intensity_factor, type=DOUBLE, repetitiontype=OPTIONAL"`
	EfficiencyFactor *float64 `parquet:"name=efficiency_factor, type=DOUBLE, repetitiontype=OPTIONAL"`
	CriticalPower    *float64 `parquet:"name=critical_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Max5SecPower     *float64 `parquet:"name=max_5sec_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Max1MinPower     *float64 `parquet:"name=max_1min_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Max3MinPower     *float64 `parquet:"name=max_3min_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Max5MinPower     *float64 `parquet:"name=max_5min_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Max10MinPower    *float64 `parquet:"name=max_10min_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Max20MinPower    *float64 `parquet:"name=max_20min_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Max30MinPower    *float64 `parquet:"name=max_30min_power, type=DOUBLE, repetitiontype=OPTIONAL"`
	Source           string   `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteActivities writes rows to path through a temporary file, so readers
// never see a partial export.
func WriteActivities(path string, rows []ActivityRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tmp := path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(ActivityRow), parquetParallelism)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("write activity row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadActivities reads an export file written by WriteActivities
func ReadActivities(path string) ([]ActivityRow, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ActivityRow), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("open parquet reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]ActivityRow, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("read activity rows: %w", err)
		}
	}
	return rows, nil
}
