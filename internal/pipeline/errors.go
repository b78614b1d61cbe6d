package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/statusexport/statusexport/internal/catalog"
	"github.com/statusexport/statusexport/internal/export"
	"github.com/statusexport/statusexport/internal/filter"
	"github.com/statusexport/statusexport/internal/loader"
)

type Stage string

const (
	StageResolve Stage = "resolve"
	StageLoad    Stage = "load"
	StageFilter  Stage = "filter"
	StageExport  Stage = "export"
	StageCommit  Stage = "commit"
)

type Kind string

const (
	KindCatalogLookup      Kind = "catalog_lookup"
	KindCatalogUnavailable Kind = "catalog_unavailable"
	KindDataRead           Kind = "data_read"
	KindFilterEvaluation   Kind = "filter_evaluation"
	KindExportWrite        Kind = "export_write"
	KindSchemaMismatch     Kind = "schema_mismatch"
	KindCommit             Kind = "commit"
	KindCanceled           Kind = "canceled"
)

// StageError is the terminal error of a failed run.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: classify(stage, err), Err: err}
}

// classify maps err onto the failure taxonomy. Errors carrying no known
// sentinel take the default kind of the stage that produced them.
func classify(stage Stage, err error) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, catalog.ErrUnavailable):
		return KindCatalogUnavailable
	case errors.Is(err, catalog.ErrLookup):
		return KindCatalogLookup
	case errors.Is(err, loader.ErrDataRead):
		return KindDataRead
	case errors.Is(err, filter.ErrEvaluation):
		return KindFilterEvaluation
	case errors.Is(err, export.ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, export.ErrWrite):
		return KindExportWrite
	}
	switch stage {
	case StageResolve:
		return KindCatalogLookup
	case StageLoad:
		return KindDataRead
	case StageFilter:
		return KindFilterEvaluation
	case StageExport:
		return KindExportWrite
	default:
		return KindCommit
	}
}
