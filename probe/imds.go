package probe

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/kbukum/consulagent/errors"
)

// Instance metadata paths, relative to /latest/meta-data/.
const (
	imdsInstanceType     = "instance-type"
	imdsAvailabilityZone = "placement/availability-zone"
)

// IMDSClient is the part of *imds.Client the prober uses.
type IMDSClient interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

// NewIMDSClient creates an instance metadata client that never retries. An
// empty endpoint uses the SDK default.
func NewIMDSClient(endpoint string) *imds.Client {
	return imds.New(imds.Options{
		Endpoint: endpoint,
		Retryer:  aws.NopRetryer{},
	})
}

// imdsMetadata reads one metadata path, bounded by the metadata timeout.
func (p *HostProber) imdsMetadata(ctx context.Context, probe, path string) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.MetadataTimeout)
	defer cancel()

	out, err := p.imds.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		p.degraded(probe, err)
		return Unknown
	}
	defer out.Content.Close()

	b, err := io.ReadAll(out.Content)
	if err != nil {
		p.degraded(probe, err)
		return Unknown
	}
	value := strings.TrimSpace(string(b))
	if value == "" {
		p.degraded(probe, errors.New(errors.ErrCodeLocalEnvironment, "empty instance metadata at "+path))
		return Unknown
	}
	return value
}
