package email

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// MaxRecipients is the SES cap on destinations per message.
const MaxRecipients = 50

// Message is one rendered alert notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
	// Tags are attached as SES message tags so deliveries can be filtered by
	// alert type and priority in SES event destinations.
	Tags map[string]string
}

// Sender delivers one alert message to every recipient.
type Sender interface {
	SendAlert(ctx context.Context, recipients []string, msg Message) error
}

type sesClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESV2Sender sends alert mail through Amazon SES v2, one API call per batch
// of at most MaxRecipients addresses.
type SESV2Sender struct {
	client    sesClient
	fromEmail string
}

// NewSESV2Sender loads credentials from the default AWS chain.
func NewSESV2Sender(ctx context.Context, region, fromEmail string) (*SESV2Sender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESV2Sender{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
	}, nil
}

// SendAlert keeps going after a failed batch and returns every batch error.
func (s *SESV2Sender) SendAlert(ctx context.Context, recipients []string, msg Message) error {
	content := alertContent(msg)
	tags := messageTags(msg.Tags)

	var errs []error
	for batch := range slices.Chunk(recipients, MaxRecipients) {
		input := &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(s.fromEmail),
			Destination:      &types.Destination{ToAddresses: batch},
			Content:          content,
			EmailTags:        tags,
		}
		if _, err := s.client.SendEmail(ctx, input); err != nil {
			errs = append(errs, fmt.Errorf("ses send to %d recipients starting with %s: %w", len(batch), batch[0], err))
		}
	}
	return errors.Join(errs...)
}

func alertContent(msg Message) *types.EmailContent {
	body := &types.Body{Text: utf8(msg.Text)}
	if msg.HTML != "" {
		body.Html = utf8(msg.HTML)
	}
	return &types.EmailContent{
		Simple: &types.Message{Subject: utf8(msg.Subject), Body: body},
	}
}

func messageTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]types.MessageTag, 0, len(names))
	for _, name := range names {
		out = append(out, types.MessageTag{Name: aws.String(name), Value: aws.String(tags[name])})
	}
	return out
}

func utf8(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}
