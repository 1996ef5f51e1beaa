package types

type TimeoutError struct{}

func (e *TimeoutError) Error() string {
	return "timeout"
}
