package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error kinds shared by every stage. Callers classify with errors.Is or KindOf.
var (
	ErrTransientFetch  = errors.New("transient fetch error")
	ErrNotFound        = errors.New("dump not found")
	ErrCorruptArchive  = errors.New("corrupt archive")
	ErrIO              = errors.New("io error")
	ErrMalformedRecord = errors.New("malformed record")
	ErrNoData          = errors.New("no data")
	ErrStorage         = errors.New("storage error")
	ErrConfig          = errors.New("invalid configuration")
)

// Kind is the stable, loggable name of an error category.
type Kind string

const (
	KindTransientFetch  Kind = "transient_fetch"
	KindNotFound        Kind = "not_found"
	KindCorruptArchive  Kind = "corrupt_archive"
	KindIO              Kind = "io"
	KindMalformedRecord Kind = "malformed_record"
	KindNoData          Kind = "no_data"
	KindStorage         Kind = "storage"
	KindConfig          Kind = "config"
	KindCanceled        Kind = "canceled"
	KindUnknown         Kind = "unknown"
)

// Cancellation wins over any kind an adapter wrapped around it.
var kinds = []struct {
	err  error
	kind Kind
}{
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
	{ErrTransientFetch, KindTransientFetch},
	{ErrNotFound, KindNotFound},
	{ErrCorruptArchive, KindCorruptArchive},
	{ErrIO, KindIO},
	{ErrMalformedRecord, KindMalformedRecord},
	{ErrNoData, KindNoData},
	{ErrStorage, KindStorage},
	{ErrConfig, KindConfig},
}

// KindOf classifies err. Nil errors have no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Retryable reports whether an orchestrator may blindly retry the failure.
func Retryable(err error) bool {
	return KindOf(err) == KindTransientFetch
}

// Stage names used in StageError and logs.
const (
	StageFetch      = "fetch"
	StageDecompress = "decompress"
	StageFilter     = "filter"
	StageLoad       = "load"
	StageReport     = "report"
)

// StageError reports which stage failed, for which hour and why.
type StageError struct {
	Stage string
	Hour  time.Time
	Kind  Kind
	Err   error
}

// NewStageError wraps err with stage context. A nil err yields nil.
func NewStageError(stage string, hour time.Time, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Hour: TargetHour(hour), Kind: KindOf(err), Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for hour %s [%s]: %v",
		e.Stage, e.Hour.Format("2006-01-02T15:00Z"), e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
