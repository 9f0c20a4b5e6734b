package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Adda-Baaj/certless/internal/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSQSPublisherPublishSuccess(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{
		id:       "queue",
		typ:      TypeSQS,
		queueURL: "https://example.com/queue",
		client:   client,
		log:      logger.NopLogger{},
	}

	if err := pub.Publish(context.Background(), sampleFetched()); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if client.input == nil {
		t.Fatalf("client was not called")
	}
	if got := aws.ToString(client.input.QueueUrl); got != "https://example.com/queue" {
		t.Fatalf("QueueUrl = %s", got)
	}
	attr, ok := client.input.MessageAttributes["certname"]
	if !ok || aws.ToString(attr.StringValue) != "foo.example.net" {
		t.Fatalf("certname attribute missing or wrong: %#v", attr)
	}
	if aws.ToString(attr.DataType) != "String" {
		t.Fatalf("DataType should be String, got %#v", attr.DataType)
	}
	if typ := client.input.MessageAttributes["event_type"]; aws.ToString(typ.StringValue) != EventCatalogFetched {
		t.Fatalf("event_type attribute = %#v", typ)
	}
	if body := aws.ToString(client.input.MessageBody); !strings.Contains(body, `"digest":"digest-1"`) {
		t.Fatalf("MessageBody missing digest: %s", body)
	}
}

func TestSQSPublisherPublishError(t *testing.T) {
	pub := &sqsPublisher{
		id:       "queue",
		queueURL: "https://example.com/queue",
		client:   &fakeSQSClient{err: errors.New("boom")},
		log:      logger.NopLogger{},
	}

	if err := pub.Publish(context.Background(), sampleFailed()); err == nil {
		t.Fatalf("expected error from Publish")
	}
}
