package bridge

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"reflect"

	"github.com/haivivi/bindkit/pkg/convert"
)

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func as[E error]() func(error) bool {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

func typeName[E any]() string {
	return reflect.TypeFor[E]().String()
}

// builtins are always consulted, after registered and third-party adapters.
var builtins = []Mapping{
	{Names: []string{typeName[*convert.MismatchError]()}, Class: "TypeError", Match: as[*convert.MismatchError]()},
	{Class: "OverflowError", Match: is(convert.ErrOverflow)},
	{Class: "TimeoutError", Match: is(context.DeadlineExceeded)},
	{Class: "InterruptedError", Match: is(context.Canceled)},
	{Names: []string{typeName[*fs.PathError]()}, Class: "FileNotFoundError", Match: is(fs.ErrNotExist)},
	{Class: "FileExistsError", Match: is(fs.ErrExist)},
	{Class: "PermissionError", Match: is(fs.ErrPermission)},
	{Class: "OSError", Match: as[*fs.PathError]()},
	{Class: "EOFError", Match: func(err error) bool {
		return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
	}},
	{Class: "NotImplementedError", Match: is(errors.ErrUnsupported)},
}

// sentinels maps built-in exception classes back to the host errors they came
// from.
var sentinels = map[string]error{
	"OverflowError":       convert.ErrOverflow,
	"TimeoutError":        context.DeadlineExceeded,
	"InterruptedError":    context.Canceled,
	"FileNotFoundError":   os.ErrNotExist,
	"FileExistsError":     os.ErrExist,
	"PermissionError":     os.ErrPermission,
	"EOFError":            io.EOF,
	"NotImplementedError": errors.ErrUnsupported,
}
