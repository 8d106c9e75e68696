package orders

import "fmt"

type Status string

const (
	StatusProcessing Status = "processing"
	StatusPending    Status = "pending"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusProcessing: {StatusPending: true, StatusDone: true, StatusCancelled: true},
	StatusPending:    {StatusPending: true, StatusDone: true, StatusCancelled: true},
	StatusDone:       {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool { return s == StatusDone || s == StatusCancelled }

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}
