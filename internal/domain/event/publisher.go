package event

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_publisher.go -package=mocks . Publisher

import "context"

// Publisher fans events out to live sessions. Delivery is best effort: callers log errors and
// never fail the mutation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
