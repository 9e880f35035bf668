package downloader

import (
	"errors"
	"io"

	"github.com/lgulliver/lodestone/internal/validate"
)

// ErrFailedValidation is surfaced as the terminal read error once the
// validator rejects the fully-drained body.
var ErrFailedValidation = errors.New("failed validation")

// ErrPollingFailedStream is returned by every read after the stream has
// already failed validation or hit an upstream I/O error - callers must
// not try to "retry" a read on the same stream.
var ErrPollingFailedStream = errors.New("polling from failed stream")

// validatingBody wraps an HTTP response body, feeding every chunk read
// through to a validator while forwarding it unchanged to the caller. On
// end-of-stream it finalizes validation; on failure - or on an upstream
// I/O error - that error is returned once, the stream transitions to a
// failed state and every subsequent Read returns ErrPollingFailedStream,
// mirroring the "error chunk then always fail" contract any consumer (including a proxied HTTP response)
// can rely on without an out-of-band channel.
type validatingBody struct {
	body      io.ReadCloser
	validator validate.Validator
	failed    bool
	bodyDone  bool
}

func newValidatingBody(body io.ReadCloser, validator validate.Validator) *validatingBody {
	return &validatingBody{body: body, validator: validator}
}

func (b *validatingBody) Read(p []byte) (int, error) {
	if b.failed {
		return 0, ErrPollingFailedStream
	}
	if b.bodyDone {
		return b.finalize()
	}

	n, err := b.body.Read(p)
	if n > 0 {
		b.validator.AddData(p[:n])
	}

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		b.bodyDone = true
		if n > 0 {
			// deliver the final bytes now; validation is finalized on the
			// next read, once the caller has actually seen them.
			return n, nil
		}
		return b.finalize()
	default:
		b.failed = true
		return n, err
	}
}

func (b *validatingBody) finalize() (int, error) {
	if b.validator.Validate() {
		return 0, io.EOF
	}
	b.failed = true
	return 0, ErrFailedValidation
}

func (b *validatingBody) Close() error {
	return b.body.Close()
}
