package errors

import "fmt"

var (
	ErrSourceUnavailable = fmt.Errorf("display event source unavailable")
	ErrNotInitialized    = fmt.Errorf("display event callbacks are not registered")
	ErrServiceDied       = fmt.Errorf("display service died")
	ErrNonMonotonicVsync = fmt.Errorf("vsync timestamp is not increasing")
	ErrUnknownEventType  = fmt.Errorf("unknown display event type")
	ErrJwtTokenInvalid   = fmt.Errorf("invalid jwt token")
)
