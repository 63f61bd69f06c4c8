package domain

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnprocessableImage = errors.New("unprocessable image")
	ErrNotFound           = errors.New("not found")
	ErrProviderFailure    = errors.New("provider failure")
	ErrNoUsableText       = errors.New("no usable text")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrExportFailure      = errors.New("export failure")
)
