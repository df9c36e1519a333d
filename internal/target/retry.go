package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"
)

// Backoff strategies accepted by NewRetryTarget.
const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
)

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// RetryTarget wraps another Target and retries transient errors.
type RetryTarget struct {
	inner      Target
	maxRetries int
	backoff    string

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryTarget wraps inner so that each operation is attempted up to
// maxRetries+1 times. An unknown backoff falls back to exponential.
func NewRetryTarget(inner Target, maxRetries int, backoff string) *RetryTarget {
	if backoff != BackoffLinear {
		backoff = BackoffExponential
	}
	return &RetryTarget{
		inner:      inner,
		maxRetries: maxRetries,
		backoff:    backoff,
		sleep:      sleepCtx,
	}
}

func (r *RetryTarget) Name() string { return r.inner.Name() }

// Unwrap returns the wrapped Target.
func (r *RetryTarget) Unwrap() Target { return r.inner }

func (r *RetryTarget) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	rewind, err := rewindable(body)
	if err != nil {
		return err
	}
	return r.do(ctx, func() error {
		b, err := rewind()
		if err != nil {
			return err
		}
		return r.inner.Put(ctx, key, b, opts)
	})
}

func (r *RetryTarget) ConditionalPut(ctx context.Context, key string, body io.Reader, cond WriteCondition, opts PutOptions) error {
	rewind, err := rewindable(body)
	if err != nil {
		return err
	}
	return r.do(ctx, func() error {
		b, err := rewind()
		if err != nil {
			return err
		}
		return r.inner.ConditionalPut(ctx, key, b, cond, opts)
	})
}

func (r *RetryTarget) Get(ctx context.Context, key string) (rc io.ReadCloser, meta ObjectMeta, err error) {
	err = r.do(ctx, func() error {
		var e error
		rc, meta, e = r.inner.Get(ctx, key)
		return e
	})
	return rc, meta, err
}

func (r *RetryTarget) Head(ctx context.Context, key string) (meta ObjectMeta, err error) {
	err = r.do(ctx, func() error {
		var e error
		meta, e = r.inner.Head(ctx, key)
		return e
	})
	return meta, err
}

func (r *RetryTarget) Delete(ctx context.Context, key string) error {
	return r.do(ctx, func() error { return r.inner.Delete(ctx, key) })
}

func (r *RetryTarget) List(ctx context.Context, prefix string) (items []ObjectInfo, err error) {
	err = r.do(ctx, func() error {
		var e error
		items, e = r.inner.List(ctx, prefix)
		return e
	})
	return items, err
}

// isTransient reports whether err is worth retrying. Missing objects, failed
// preconditions and cancellation are final.
func isTransient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPreconditionFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (r *RetryTarget) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if !isTransient(err) || attempt >= r.maxRetries {
			return err
		}
		if serr := r.sleep(ctx, r.delay(attempt)); serr != nil {
			return serr
		}
	}
}

// delay returns the wait before retry number attempt+1, with +/-25% jitter.
func (r *RetryTarget) delay(attempt int) time.Duration {
	var d time.Duration
	if r.backoff == BackoffLinear {
		d = retryBaseDelay * time.Duration(attempt+1)
	} else {
		d = retryBaseDelay << min(attempt, 16)
	}
	d = min(d, retryMaxDelay)
	return d - d/4 + rand.N(d/2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rewindable returns a function that yields body from its start on every
// call. Seekable bodies are rewound in place; anything else is buffered.
func rewindable(body io.Reader) (func() (io.Reader, error), error) {
	if s, ok := body.(io.ReadSeeker); ok {
		start, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("retry: seek body: %w", err)
		}
		return func() (io.Reader, error) {
			if _, err := s.Seek(start, io.SeekStart); err != nil {
				return nil, fmt.Errorf("retry: rewind body: %w", err)
			}
			return s, nil
		}, nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("retry: buffer body: %w", err)
	}
	return func() (io.Reader, error) { return bytes.NewReader(data), nil }, nil
}
