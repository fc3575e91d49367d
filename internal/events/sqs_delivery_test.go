package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (s *stubSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSDeliveryHandle(t *testing.T) {
	client := &stubSQS{}
	delivery := NewSQSDelivery(client, "https://sqs.local/queue")

	env, err := NewEnvelope(TypeBookingCreated, BookingCreatedV1{BookingID: "b-1"})
	require.NoError(t, err)
	require.NoError(t, delivery.Handle(context.Background(), env))

	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs.local/queue", aws.ToString(client.input.QueueUrl))
	assert.Equal(t, TypeBookingCreated, aws.ToString(client.input.MessageAttributes["event_type"].StringValue))

	var body Envelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &body))
	assert.Equal(t, env.ID, body.ID)
}

func TestSQSDeliveryError(t *testing.T) {
	delivery := NewSQSDelivery(&stubSQS{err: errors.New("throttled")}, "q")
	err := delivery.Handle(context.Background(), Envelope{ID: "x", Type: TypeBookingCreated, Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)
}
