package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyRunning     = errors.New("server is already running")
	ErrNotRunning         = errors.New("server is not running")
	ErrAlreadyDownloading = errors.New("a download is already in progress for this server")
	ErrCoreMissing        = errors.New("server core file is missing")
	ErrInvalidTrigger     = errors.New("invalid trigger")
	ErrFetchFailed        = errors.New("catalog fetch failed")
	ErrIO                 = errors.New("i/o failure")
	ErrExists             = errors.New("already exists")
	ErrInUse              = errors.New("still in use")
)
