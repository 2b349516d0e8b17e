// Package sms sends text messages and runs phone verification through Twilio.
package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

var ErrNotConfigured = errors.New("twilio is not configured")

const statusApproved = "approved"

type Sender interface {
	// Send delivers body to the E.164 number and returns the provider message id.
	Send(ctx context.Context, to, body string) (string, error)
}

type Verifier interface {
	StartVerification(ctx context.Context, phone string) error
	// CheckVerification reports whether code is the one sent to phone.
	CheckVerification(ctx context.Context, phone, code string) (bool, error)
}

type Client interface {
	Sender
	Verifier
}

type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	VerifySID  string
}

type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
}

type twilioClient struct {
	from      string
	verifySID string
	messages  messageAPI
	verify    verifyAPI
}

// NewTwilioClient returns a client bound to the account. Without credentials every
// call fails with ErrNotConfigured.
func NewTwilioClient(cfg Config) Client {
	c := &twilioClient{from: cfg.FromNumber, verifySID: cfg.VerifySID}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return c
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	c.messages = rest.Api
	c.verify = rest.VerifyV2
	return c
}

func (c *twilioClient) Send(ctx context.Context, to, body string) (string, error) {
	if c.messages == nil {
		return "", ErrNotConfigured
	}
	if to == "" {
		return "", fmt.Errorf("sms recipient is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.messages.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

func (c *twilioClient) StartVerification(ctx context.Context, phone string) error {
	if c.verify == nil || c.verifySID == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &verify.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")
	if _, err := c.verify.CreateVerification(c.verifySID, params); err != nil {
		return fmt.Errorf("failed to start verification: %w", err)
	}
	return nil
}

func (c *twilioClient) CheckVerification(ctx context.Context, phone, code string) (bool, error) {
	if c.verify == nil || c.verifySID == "" {
		return false, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)
	resp, err := c.verify.CreateVerificationCheck(c.verifySID, params)
	if err != nil {
		return false, fmt.Errorf("failed to check verification: %w", err)
	}
	return resp.Status != nil && *resp.Status == statusApproved, nil
}
