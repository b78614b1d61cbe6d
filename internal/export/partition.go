package export

import (
	"fmt"

	"github.com/statusexport/statusexport/internal/storage"
	"github.com/statusexport/statusexport/internal/table"
)

type plannedFile struct {
	key    string
	schema table.Schema
	rows   []table.Row
}

type partitionGroup struct {
	dir  string
	rows []table.Row
}

// planFiles lays t out as part files. Partition columns are moved out of the
// file schema into key=value directories, and groups keep first-seen order.
// An empty table always becomes one file at the root with the full schema.
func planFiles(t table.Table, partitionColumns []string, maxRowsPerFile int, runID string) ([]plannedFile, error) {
	if _, err := newRowModel(t.Schema); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if t.Len() == 0 || len(partitionColumns) == 0 {
		return splitRows("", t.Schema, t.Rows, maxRowsPerFile, runID)
	}

	partitionIdx, fileSchema, keepIdx, err := splitSchema(t.Schema, partitionColumns)
	if err != nil {
		return nil, err
	}

	groups := make([]*partitionGroup, 0)
	byDir := make(map[string]*partitionGroup)
	for _, row := range t.Rows {
		values := make([]*string, len(partitionIdx))
		for j, idx := range partitionIdx {
			if row[idx] == nil {
				continue
			}
			text, ok := table.Text(row[idx])
			if !ok {
				return nil, fmt.Errorf("%w: partition column %q cannot hold %T", ErrSchemaMismatch, t.Schema[idx].Name, row[idx])
			}
			values[j] = &text
		}
		dir, err := storage.BuildPartitionDir(partitionColumns, values)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}

		group, ok := byDir[dir]
		if !ok {
			group = &partitionGroup{dir: dir}
			byDir[dir] = group
			groups = append(groups, group)
		}
		projected := make(table.Row, len(keepIdx))
		for j, idx := range keepIdx {
			projected[j] = row[idx]
		}
		group.rows = append(group.rows, projected)
	}

	files := make([]plannedFile, 0, len(groups))
	for _, group := range groups {
		parts, err := splitRows(group.dir, fileSchema, group.rows, maxRowsPerFile, runID)
		if err != nil {
			return nil, err
		}
		files = append(files, parts...)
	}
	return files, nil
}

func splitSchema(schema table.Schema, partitionColumns []string) ([]int, table.Schema, []int, error) {
	partitionIdx := make([]int, 0, len(partitionColumns))
	isPartition := make(map[int]struct{}, len(partitionColumns))
	for _, name := range partitionColumns {
		idx, ok := schema.Lookup(name)
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: unknown partition column %q", ErrSchemaMismatch, name)
		}
		if _, dup := isPartition[idx]; dup {
			return nil, nil, nil, fmt.Errorf("%w: partition column %q listed twice", ErrSchemaMismatch, name)
		}
		if schema[idx].Type == table.TypeBinary {
			return nil, nil, nil, fmt.Errorf("%w: binary column %q cannot partition", ErrSchemaMismatch, name)
		}
		isPartition[idx] = struct{}{}
		partitionIdx = append(partitionIdx, idx)
	}

	fileSchema := make(table.Schema, 0, len(schema)-len(partitionIdx))
	keepIdx := make([]int, 0, len(schema)-len(partitionIdx))
	for i, column := range schema {
		if _, ok := isPartition[i]; ok {
			continue
		}
		fileSchema = append(fileSchema, column)
		keepIdx = append(keepIdx, i)
	}
	if len(fileSchema) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: every column is a partition column", ErrSchemaMismatch)
	}
	return partitionIdx, fileSchema, keepIdx, nil
}

func splitRows(dir string, schema table.Schema, rows []table.Row, maxRowsPerFile int, runID string) ([]plannedFile, error) {
	if maxRowsPerFile <= 0 || len(rows) <= maxRowsPerFile {
		key, err := storage.BuildPartFilePath(dir, runID, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return []plannedFile{{key: key, schema: schema, rows: rows}}, nil
	}

	files := make([]plannedFile, 0, (len(rows)+maxRowsPerFile-1)/maxRowsPerFile)
	for start, sequence := 0, 0; start < len(rows); start, sequence = start+maxRowsPerFile, sequence+1 {
		end := min(start+maxRowsPerFile, len(rows))
		key, err := storage.BuildPartFilePath(dir, runID, sequence)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrite, err)
		}
		files = append(files, plannedFile{key: key, schema: schema, rows: rows[start:end]})
	}
	return files, nil
}
