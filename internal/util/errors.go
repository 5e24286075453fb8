package util

import "errors"

var (
	ErrLessonNotFound    = errors.New("lesson not found")
	ErrModuleNotFound    = errors.New("module not found")
	ErrSessionNotFound   = errors.New("lesson session not found, open the lesson first")
	ErrCannotAdvance     = errors.New("lesson is not complete yet")
	ErrRewriteInFlight   = errors.New("a rewrite for this field is already running")
	ErrPreviewNotFound   = errors.New("preview not found or expired")
	ErrInvalidUpload     = errors.New("invalid upload")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
