package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS sends the message to the queue URL in addrs[0]. For FIFO queues
// addrs[1] names the message group.
type SQS struct {
	plugin.BaseService
	mu      sync.Mutex
	clients map[string]SQSSender
}

func (s *SQS) Reentrant() bool { return true }

func (s *SQS) client(ctx context.Context, region string) (SQSSender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[region]; ok {
		return c, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS configuration: %w", err)
	}
	if s.clients == nil {
		s.clients = map[string]SQSSender{}
	}
	c := sqs.NewFromConfig(cfg)
	s.clients[region] = c
	return c, nil
}

func (s *SQS) Deliver(ctx context.Context, it *item.Item) error {
	queueURL, err := it.Addr(0)
	if err != nil {
		return err
	}
	client, err := s.client(ctx, it.ConfigString("region", ""))
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(it.Text()),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"topic": {DataType: aws.String("String"), StringValue: aws.String(it.Topic)},
		},
	}
	if it.Title != "" {
		input.MessageAttributes["title"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(it.Title)}
	}
	if group, err := it.Addr(1); err == nil {
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(uuid.NewString())
	}

	if _, err := client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("cannot send to SQS queue %s: %w", queueURL, err)
	}
	return nil
}
