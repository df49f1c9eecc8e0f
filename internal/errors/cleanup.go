// Package errors provides cleanup helpers that keep close errors visible.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// DeferClose closes closer and logs a failure. Use it in defer statements
// where the close error cannot change the outcome, such as response bodies.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// CloseInto closes closer and joins a failure into *errp. Use it in defer
// statements where a failed close loses data, such as written files.
func CloseInto(errp *error, closer io.Closer, what string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		*errp = stderrors.Join(*errp, fmt.Errorf("failed to close %s: %w", what, err))
	}
}

// Must panics if err is not nil.
// Use only for initialization code where failure should halt the program.
func Must(err error, msg string) {
	if err != nil {
		panic(fmt.Sprintf("%s: %v", msg, err))
	}
}
