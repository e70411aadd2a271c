package monitor

import "errors"

var (
	ErrPathNotFound        = errors.New("watched path does not exist")
	ErrInvalidPath         = errors.New("path must be an existing file or folder")
	ErrInvalidPollInterval = errors.New("poll interval must be greater than 0")
)
