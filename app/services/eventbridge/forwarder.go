// Package eventbridge forwards in-process events to an AWS EventBridge bus
// so other systems can react to them.
package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseb "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/events"
)

// Token is the container token of the *Forwarder.
var Token = container.TypeOf[*Forwarder]()

// API is the part of the EventBridge client the forwarder uses.
type API interface {
	PutEvents(ctx context.Context, in *awseb.PutEventsInput, optFns ...func(*awseb.Options)) (*awseb.PutEventsOutput, error)
	DescribeEventBus(ctx context.Context, in *awseb.DescribeEventBusInput, optFns ...func(*awseb.Options)) (*awseb.DescribeEventBusOutput, error)
}

// Forwarder publishes events to one bus.
type Forwarder struct {
	api    API
	bus    string
	source string
	logger *zap.Logger
}

// NewForwarder creates a forwarder for bus. Entries carry source as their
// Source field.
func NewForwarder(api API, bus, source string, logger *zap.Logger) (*Forwarder, error) {
	if bus == "" {
		return nil, errors.New("eventbridge: bus name is required")
	}
	if source == "" {
		source = "assistant"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{api: api, bus: bus, source: source, logger: logger}, nil
}

// Forward sends e as one PutEvents entry with the event name as DetailType.
func (f *Forwarder) Forward(ctx context.Context, e events.Event) error {
	detail, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Name, err)
	}
	out, err := f.api.PutEvents(ctx, &awseb.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(f.bus),
			Source:       aws.String(f.source),
			DetailType:   aws.String(e.Name),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(e.OccurredAt),
		}},
	})
	if err != nil {
		return fmt.Errorf("forward event %s: %w", e.Name, err)
	}
	if out.FailedEntryCount > 0 {
		for _, entry := range out.Entries {
			if entry.ErrorCode != nil {
				f.logger.Error("event rejected by bus",
					zap.String("event", e.Name),
					zap.String("event_id", e.ID),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)))
			}
		}
		return fmt.Errorf("forward event %s: %d entries failed", e.Name, out.FailedEntryCount)
	}
	f.logger.Debug("event forwarded", zap.String("event", e.Name), zap.String("bus", f.bus))
	return nil
}

// HealthCheck verifies the bus exists.
func (f *Forwarder) HealthCheck(ctx context.Context) error {
	_, err := f.api.DescribeEventBus(ctx, &awseb.DescribeEventBusInput{Name: aws.String(f.bus)})
	return err
}
