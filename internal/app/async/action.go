// Package async models the lifecycle of a single fallible, possibly
// confirmed, asynchronous operation as seen by a presenter.
package async

import (
	"encoding/json"
	"fmt"
)

// Unit is the value of actions that succeed without a result.
type Unit struct{}

type Kind int

const (
	KindUninitialized Kind = iota
	KindConfirming
	KindLoading
	KindSuccess
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindUninitialized:
		return "uninitialized"
	case KindConfirming:
		return "confirming"
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Action is a tagged variant. The zero value is Uninitialized.
// Value is only meaningful for Success, Err only for Failure.
type Action[T any] struct {
	kind  Kind
	value T
	err   error
}

func Uninitialized[T any]() Action[T] { return Action[T]{} }

func Confirming[T any]() Action[T] { return Action[T]{kind: KindConfirming} }

func Loading[T any]() Action[T] { return Action[T]{kind: KindLoading} }

func Success[T any](v T) Action[T] { return Action[T]{kind: KindSuccess, value: v} }

func Failure[T any](err error) Action[T] { return Action[T]{kind: KindFailure, err: err} }

// FromResult maps the outcome of a call to Success or Failure.
func FromResult[T any](v T, err error) Action[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}

func (a Action[T]) Kind() Kind { return a.kind }

func (a Action[T]) Value() (T, bool) { return a.value, a.kind == KindSuccess }

func (a Action[T]) Err() error {
	if a.kind != KindFailure {
		return nil
	}
	return a.err
}

func (a Action[T]) IsUninitialized() bool { return a.kind == KindUninitialized }
func (a Action[T]) IsConfirming() bool    { return a.kind == KindConfirming }
func (a Action[T]) IsLoading() bool       { return a.kind == KindLoading }
func (a Action[T]) IsSuccess() bool       { return a.kind == KindSuccess }
func (a Action[T]) IsFailure() bool       { return a.kind == KindFailure }

// IsReady reports whether the action has reached a terminal state.
func (a Action[T]) IsReady() bool { return a.kind == KindSuccess || a.kind == KindFailure }

func (a Action[T]) String() string {
	if a.kind == KindFailure && a.err != nil {
		return fmt.Sprintf("failure(%v)", a.err)
	}
	return a.kind.String()
}

type wireAction struct {
	State string `json:"state"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func (a Action[T]) MarshalJSON() ([]byte, error) {
	w := wireAction{State: a.kind.String()}
	switch a.kind {
	case KindSuccess:
		if _, unit := any(a.value).(Unit); !unit {
			w.Value = a.value
		}
	case KindFailure:
		if a.err != nil {
			w.Error = a.err.Error()
		}
	}
	return json.Marshal(w)
}
