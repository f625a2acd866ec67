// Package workerloop implements the read-decode-invoke-encode cycle shared
// by process workers (internal/procworker) and distributed slaves
// (internal/distributed): spec §4.10's worker-side loop.
package workerloop

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/kestrelrun/dispatch/internal/sentinel"
	"github.com/kestrelrun/dispatch/internal/wire"
)

// Run reads job frames from ch, invokes fn (a func(context.Context, I, int)
// (O, error) resolved by reflection, since the registered function's exact
// types are only known at the registration call site), and writes back a
// result or exception frame, until a terminator frame arrives or the
// connection closes. A closed connection (io.EOF) ends the loop without
// error, matching a worker simply being torn down by its driver.
func Run(ctx context.Context, ch *wire.Channel, fn any) error {
	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func || fnVal.Type().NumIn() != 3 || fnVal.Type().NumOut() != 2 {
		return fmt.Errorf("workerloop: registered function has the wrong shape: %T", fn)
	}

	for {
		frame, err := ch.Receive()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if frame.Kind == wire.KindTerminator {
			return nil
		}

		result, callErr := invoke(ctx, fnVal, frame.Item, frame.Index)
		if callErr != nil {
			wrapped := &wire.ExceptionWrapper{
				ClassName: sentinel.ClassNameFor(callErr),
				Message:   callErr.Error(),
			}
			if sendErr := ch.Send(wire.Frame{Kind: wire.KindResult, Index: frame.Index, Wrapped: wrapped}); sendErr != nil {
				return sendErr
			}
			continue
		}
		if frame.Discard {
			result = nil
		}
		if sendErr := ch.SendResult(frame.Index, result); sendErr != nil {
			// The result value itself could not be serialized (an
			// unregistered concrete type behind the Value any field, most
			// likely). Fall back to reporting the encode failure as the
			// job's outcome rather than killing the connection over it
			// (spec §7, UndumpableError).
			undumpable := &wire.ExceptionWrapper{
				ClassName: sentinel.UndumpableClassName,
				Message:   sendErr.Error(),
			}
			if resendErr := ch.Send(wire.Frame{Kind: wire.KindResult, Index: frame.Index, Wrapped: undumpable}); resendErr != nil {
				return resendErr
			}
		}
	}
}

func invoke(ctx context.Context, fnVal reflect.Value, item any, index int) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workerloop: worker function panicked: %v", r)
		}
	}()

	itemType := fnVal.Type().In(1)
	itemVal := reflect.ValueOf(item)
	if !itemVal.IsValid() {
		itemVal = reflect.Zero(itemType)
	}

	out := fnVal.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		itemVal,
		reflect.ValueOf(index),
	})

	result = out[0].Interface()
	if e, ok := out[1].Interface().(error); ok && e != nil {
		err = e
	}
	return result, err
}
