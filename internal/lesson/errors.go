package lesson

import "errors"

var (
	ErrUnknownEvent      = errors.New("unknown widget event")
	ErrStateMismatch     = errors.New("state does not belong to this widget")
	ErrRewriteNotAllowed = errors.New("field cannot be rewritten")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownTarget     = errors.New("unknown event target")
)
