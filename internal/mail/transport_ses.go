package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

// SESTransport delivers mail through AWS SES using the SDK v2.
type SESTransport struct {
	region string
	client *sesv2.Client
}

// NewSESTransport builds an SES client from static credentials.
func NewSESTransport(accessKey, secretKey, region string) (*SESTransport, error) {
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &SESTransport{region: region, client: sesv2.NewFromConfig(cfg)}, nil
}

// Send delivers a single email through SES.
func (t *SESTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if t.client == nil {
		return nil, fmt.Errorf("SES client not initialized - check credentials")
	}

	body := &types.Body{
		Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	simple := &types.Message{
		Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
		Body:    body,
	}
	for k, v := range msg.Headers {
		simple.Headers = append(simple.Headers, types.MessageHeader{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Simple: simple},
	}
	if msg.CampaignID != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
		}
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return &SendResult{Success: false, Error: err, Provider: ProviderSES}, nil
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}

	logger.Info("ses send ok", "to", msg.To, "message_id", messageID)
	return &SendResult{Success: true, MessageID: messageID, Provider: ProviderSES, SentAt: time.Now()}, nil
}

// Probe verifies the credentials by fetching the SES account description.
func (t *SESTransport) Probe(ctx context.Context) error {
	if t.client == nil {
		return fmt.Errorf("SES client not initialized")
	}
	if _, err := t.client.GetAccount(ctx, &sesv2.GetAccountInput{}); err != nil {
		return fmt.Errorf("SES account check: %w", err)
	}
	return nil
}
