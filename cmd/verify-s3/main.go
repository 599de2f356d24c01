// Package main checks that the configured bucket and STI prefix are
// reachable with the credentials in the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.ngs.io/sti-api/internal/adapter/store/s3"
	"go.ngs.io/sti-api/internal/config"
)

func main() {
	maxKeys := flag.Int("max-keys", 10, "Maximum number of entries to list")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !verify(ctx, cfg, int32(*maxKeys)) { //nolint:gosec // flag value is small.
		os.Exit(1)
	}
}

func verify(ctx context.Context, cfg *config.Config, maxKeys int32) bool {
	bucket := cfg.S3.Bucket
	prefix := cfg.STI.BasePrefix
	rule := strings.Repeat("-", 40)

	fmt.Println("--- S3 Connectivity Verification ---")
	fmt.Printf("Configured Bucket: %s\n", bucket)
	fmt.Printf("Configured Region: %s\n", cfg.S3.Region)
	if cfg.S3.Endpoint != "" {
		fmt.Printf("Custom Endpoint: %s\n", cfg.S3.Endpoint)
	}
	fmt.Printf("Target Prefix: %s\n", prefix)
	fmt.Println(rule)

	client, err := s3.New(ctx, s3.Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	})
	if err != nil {
		report(cfg, err)
		return false
	}

	// Custom endpoints rarely implement STS.
	if cfg.S3.Endpoint == "" {
		arn, err := client.CallerIdentity(ctx)
		if err != nil {
			report(cfg, err)
			return false
		}
		fmt.Println("SUCCESS: AWS identity found.")
		fmt.Printf("Arn: %s\n", arn)
		fmt.Println(rule)
	}

	fmt.Printf("Attempting to list objects in '%s' under '%s'...\n", bucket, prefix)
	sample, err := client.ListSample(ctx, bucket, prefix, maxKeys)
	if err != nil {
		report(cfg, err)
		return false
	}

	switch {
	case len(sample.Prefixes) > 0:
		fmt.Printf("SUCCESS: Found %d top-level folders:\n", len(sample.Prefixes))
		for _, p := range sample.Prefixes {
			fmt.Printf(" - %s\n", p)
		}
	case len(sample.Keys) > 0:
		fmt.Printf("SUCCESS: Found %d objects.\n", len(sample.Keys))
	default:
		fmt.Println("WARNING: Connected successfully, but no objects found with the given prefix.")
	}
	return true
}

func report(cfg *config.Config, err error) {
	switch s3.Classify(err) {
	case s3.FailureNoCredentials:
		fmt.Println("ERROR: No AWS credentials found. Configure AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY or ~/.aws/credentials.")
	case s3.FailureAccessDenied:
		fmt.Printf("ERROR: Access denied to bucket '%s'. Ensure your IAM policy allows 's3:ListBucket' on 'arn:aws:s3:::%s'.\n", cfg.S3.Bucket, cfg.S3.Bucket)
	case s3.FailureNoSuchBucket:
		fmt.Printf("ERROR: The bucket '%s' does not exist.\n", cfg.S3.Bucket)
	case s3.FailureEndpointUnreachable:
		fmt.Printf("ERROR: Could not connect to the S3 endpoint. Check your network and region ('%s').\n", cfg.S3.Region)
	default:
		fmt.Printf("ERROR: An unexpected error occurred: %v\n", err)
	}
}
