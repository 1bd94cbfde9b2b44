// Package credentials resolves the Threads API credentials at startup.
//
// Credentials come from environment variables first (THREADS_ACCESS_TOKEN,
// THREADS_USER_ID), falling back to SSM Parameter Store when AWS access is
// configured. The SSM path keeps long-lived tokens out of shell profiles on
// shared machines.
package credentials

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// Default SSM parameter names, overridable via SSM_THREADS_TOKEN_PARAM and
// SSM_THREADS_USER_ID_PARAM.
const (
	defaultTokenParam  = "/threadspipe/prod/threads-access-token"
	defaultUserIDParam = "/threadspipe/prod/threads-user-id"
)

// Credentials is a resolved Threads access token and user ID pair.
type Credentials struct {
	AccessToken string
	UserID      string
}

// Load resolves credentials from the environment, then from SSM Parameter
// Store for whichever value is still missing. Returns an error when neither
// source can supply both values.
func Load(ctx context.Context) (*Credentials, error) {
	creds := &Credentials{
		AccessToken: os.Getenv("THREADS_ACCESS_TOKEN"),
		UserID:      os.Getenv("THREADS_USER_ID"),
	}
	if creds.AccessToken != "" && creds.UserID != "" {
		return creds, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("credentials not set in environment and AWS config unavailable: %w", err)
	}
	ssmClient := ssm.NewFromConfig(awsCfg)

	if creds.AccessToken == "" {
		creds.AccessToken, err = fetchParameter(ctx, ssmClient, paramName("SSM_THREADS_TOKEN_PARAM", defaultTokenParam), true)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
	}
	if creds.UserID == "" {
		creds.UserID, err = fetchParameter(ctx, ssmClient, paramName("SSM_THREADS_USER_ID_PARAM", defaultUserIDParam), false)
		if err != nil {
			return nil, fmt.Errorf("user ID: %w", err)
		}
	}
	return creds, nil
}

func paramName(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func fetchParameter(ctx context.Context, client *ssm.Client, name string, decrypt bool) (string, error) {
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("read %s from SSM: %w", name, err)
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("Parameter loaded from SSM")
	return *result.Parameter.Value, nil
}
