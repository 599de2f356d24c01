package s3

import (
	"errors"
	"net"
	"net/http"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// Failure classes reported by Classify.
const (
	FailureNoCredentials       = "no_credentials"
	FailureAccessDenied        = "access_denied"
	FailureNoSuchBucket        = "no_such_bucket"
	FailureEndpointUnreachable = "endpoint_unreachable"
	FailureUnknown             = "unknown"
)

// Classify maps an S3 error to a coarse failure class for diagnostics.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return FailureNoSuchBucket
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return FailureNoSuchBucket
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			return FailureAccessDenied
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "failed to retrieve credentials") || strings.Contains(msg, "no EC2 IMDS role found") {
		return FailureNoCredentials
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return FailureEndpointUnreachable
	}
	return FailureUnknown
}
