package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceOpen    = errors.New("device open failed")
	ErrPublishFailed = errors.New("publish failed")
	ErrDeviceLost    = errors.New("device connection lost")
)

// DeviceOpenError ends the loop before the first read.
type DeviceOpenError struct {
	Err error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDeviceOpen, e.Err)
}

func (e *DeviceOpenError) Unwrap() []error {
	return []error{ErrDeviceOpen, e.Err}
}

// PublishError is returned when the sink rejected a value. Never retried.
type PublishError struct {
	Destination string
	Value       uint32
	Err         error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%v: value %d to %q: %v", ErrPublishFailed, e.Value, e.Destination, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{ErrPublishFailed, e.Err}
}
