package config

import (
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

// PasswordFromSecretsManager retrieves the document store password from
// AWS Secrets Manager. Deployments that keep the password in the
// connection string simply leave the secret ARN unset.
func PasswordFromSecretsManager(secretArn string) (string, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return "", fmt.Errorf("failed to create AWS session: %w", err)
	}
	svc := secretsmanager.New(sess)
	result, err := svc.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretArn),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret value: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret value is nil")
	}
	return *result.SecretString, nil
}
