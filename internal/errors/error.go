// Package errors centralises the sentinel errors and formatted-error
// constructors used across the mirror. Kinds, not concrete types: callers
// branch on the error taxonomy in spec.md §7, not on Go error types.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoSuitableCatalogue = errors.New("no suitable catalogue URL produced any dataset")
	ErrDefinitionDisabled  = errors.New("definition is disabled")
	ErrDefinitionNotFound  = errors.New("definition not found")
	ErrSizeCapExceeded     = errors.New("downloaded object exceeded the single-object size cap")
	ErrRetriesExhausted    = errors.New("fetch retries exhausted")
	ErrInsufficientSpace   = errors.New("insufficient free space on temp filesystem")
	ErrCorrupted           = errors.New("integrity check failed")
	ErrAWSRegionNotConfigured = errors.New(`DynamoDB region not configured. Please set region using one of:
1. config.yaml: dynamodb-region: us-east-1
2. Environment: export AWS_REGION=us-east-1
3. Environment: export AWS_DEFAULT_REGION=us-east-1

Common regions: us-east-1, us-west-2, eu-west-1, ap-southeast-1`)
)

// FetchingResourceError generates a formatted error for a failed fetch of
// any named resource.
func FetchingResourceError(resource string) error {
	return fmt.Errorf("failed to fetch %s", resource)
}

// ConfigNotSetError reports a required configuration value that is missing.
func ConfigNotSetError(name string) error {
	return fmt.Errorf("the %s configuration value must be set", name)
}
