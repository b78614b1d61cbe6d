package storage

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	// HiveDefaultPartition names the directory holding rows whose partition
	// value is null.
	HiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"
	SuccessMarker        = "_SUCCESS"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildPartFilePath names one Parquet part below an optional partition
// directory, e.g. "OrderDate=2024-01-02/part-00000-<run>.snappy.parquet".
func BuildPartFilePath(partitionDir, runID string, sequence int) (string, error) {
	if err := validatePathComponent(runID, "run id"); err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	name := fmt.Sprintf("part-%05d-%s.snappy.parquet", sequence, runID)
	if partitionDir == "" {
		return name, nil
	}
	return path.Join(partitionDir, name), nil
}

// BuildPartitionDir renders Hive-style key=value segments. A nil value maps to
// HiveDefaultPartition; other values are path-escaped.
func BuildPartitionDir(columns []string, values []*string) (string, error) {
	if len(columns) != len(values) {
		return "", fmt.Errorf("partition columns/values mismatch: %d vs %d", len(columns), len(values))
	}
	segments := make([]string, 0, len(columns))
	for i, column := range columns {
		if strings.TrimSpace(column) == "" {
			return "", fmt.Errorf("partition column name is required")
		}
		value := HiveDefaultPartition
		if values[i] != nil && *values[i] != "" {
			value = url.PathEscape(*values[i])
		}
		segments = append(segments, url.PathEscape(column)+"="+value)
	}
	return path.Join(segments...), nil
}

// IsHiddenObject reports whether a key names a marker or temp object that
// dataset readers skip (any segment starting with "_" or ".").
func IsHiddenObject(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if strings.HasPrefix(segment, "_") || strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
