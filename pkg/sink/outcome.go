package sink

import (
	"fmt"
	"sort"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// ErrorKind classifies why a message failed.
type ErrorKind string

const (
	ErrorKindConfig          ErrorKind = "CONFIG_ERROR"
	ErrorKindDeserialization ErrorKind = "DESERIALIZATION_ERROR"
	ErrorKindSinkWrite       ErrorKind = "SINK_WRITE_ERROR"
	ErrorKindSinkUnknown     ErrorKind = "SINK_UNKNOWN_ERROR"
)

// ErrorInfo describes the failure of one message.
type ErrorInfo struct {
	Kind ErrorKind
	Err  error
}

func (e *ErrorInfo) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ErrorInfo) Unwrap() error {
	return e.Err
}

// Outcome is the conversion result for one entry, or for one message that
// produced no entry because it failed. Success and Err are mutually
// exclusive and Entry is set exactly when Success is true.
type Outcome struct {
	Index    int
	Success  bool
	Entry    *Entry
	Err      *ErrorInfo
	Metadata string
}

// SuccessOutcome creates the outcome of a converted entry.
func SuccessOutcome(entry Entry, metadata string) Outcome {
	return Outcome{
		Index:    entry.Index,
		Success:  true,
		Entry:    &entry,
		Metadata: metadata,
	}
}

// FailedOutcome creates the outcome of a message that could not be converted.
func FailedOutcome(index int, kind ErrorKind, err error, metadata string) Outcome {
	return Outcome{
		Index:    index,
		Err:      &ErrorInfo{Kind: kind, Err: err},
		Metadata: metadata,
	}
}

// ErrorKindOf maps a conversion error onto an ErrorKind.
func ErrorKindOf(err error) ErrorKind {
	switch sinkerrors.TypeOf(err) {
	case sinkerrors.ErrorTypeConfig, sinkerrors.ErrorTypeSchemaMapping:
		return ErrorKindConfig
	case sinkerrors.ErrorTypeDeserialization:
		return ErrorKindDeserialization
	case sinkerrors.ErrorTypeWrite, sinkerrors.ErrorTypeBackend, sinkerrors.ErrorTypeRateLimit:
		return ErrorKindSinkWrite
	default:
		return ErrorKindSinkUnknown
	}
}

// Response is the result of a Push. Errors is keyed by batch index and holds
// the first failure seen for each failed message.
type Response struct {
	Errors       map[int]*ErrorInfo
	DeadLettered []int
}

func newResponse() *Response {
	return &Response{Errors: make(map[int]*ErrorInfo)}
}

func (r *Response) addError(index int, info *ErrorInfo) {
	if _, ok := r.Errors[index]; !ok {
		r.Errors[index] = info
	}
}

// HasErrors reports whether any message failed.
func (r *Response) HasErrors() bool {
	return len(r.Errors) > 0
}

// FailedIndexes returns the failed batch indexes in ascending order.
func (r *Response) FailedIndexes() []int {
	idx := make([]int, 0, len(r.Errors))
	for i := range r.Errors {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// LowestFailedIndex returns the smallest failed index. ok is false when the
// batch had no failures.
func (r *Response) LowestFailedIndex() (index int, ok bool) {
	idx := r.FailedIndexes()
	if len(idx) == 0 {
		return 0, false
	}
	return idx[0], true
}
