package errors

import "fmt"

var (
	ErrInvalidRecipient = fmt.Errorf("recipient does not exist")
	ErrInvalidContent   = fmt.Errorf("content is empty or too long")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)
