package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/quicpulse/quicpulse/status"
)

// UnsignedPayload is the payload-hash placeholder that multipart bodies sign
// with instead of PayloadHash.
const UnsignedPayload = "UNSIGNED-PAYLOAD"

// sigv4StrippedHeaders are removed before re-signing a redirected request.
var sigv4StrippedHeaders = []string{
	"Authorization",
	"X-Amz-Date",
	"X-Amz-Content-Sha256",
	"X-Amz-Security-Token",
}

// SigV4Options carries the CLI-level signing knobs.
type SigV4Options struct {
	// Credentials is the explicit "key:secret[:token]" from -a, if any.
	Credentials string
	// Profile is the --aws-profile value, if any.
	Profile string
	// Region is the --aws-region value, if any.
	Region string
	// Service is the --aws-service value, if any.
	Service string
}

// SigV4Signer signs requests with AWS Signature Version 4 and re-signs them
// across redirects.
type SigV4Signer struct {
	creds   aws.Credentials
	region  string
	service string
	signer  *v4.Signer
	// explicitService records whether the service came from a flag; when
	// false the service is re-inferred from the host after a redirect.
	explicitService bool
}

// NewSigV4Signer resolves credentials, region and service.
//
// Credentials resolve in order: explicit -a, --aws-profile, the AWS_PROFILE
// environment, then AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY[/SESSION_TOKEN].
// Region resolves flag → AWS_REGION → AWS_DEFAULT_REGION → us-east-1.
// Service resolves flag → leftmost label of a *.amazonaws.com host →
// "execute-api".
func NewSigV4Signer(ctx context.Context, opts SigV4Options, host string) (*SigV4Signer, error) {
	creds, err := resolveCredentials(ctx, opts)
	if err != nil {
		return nil, err
	}

	region := opts.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	service := opts.Service
	explicit := service != ""
	if service == "" {
		service = inferService(host)
	}

	return &SigV4Signer{
		creds:           creds,
		region:          region,
		service:         service,
		signer:          v4.NewSigner(),
		explicitService: explicit,
	}, nil
}

func resolveCredentials(ctx context.Context, opts SigV4Options) (aws.Credentials, error) {
	if opts.Credentials != "" {
		parts := strings.SplitN(opts.Credentials, ":", 3)
		if len(parts) < 2 {
			return aws.Credentials{}, status.Errorf(status.KindAuth,
				"aws-sigv4 credentials must be ACCESS_KEY:SECRET_KEY[:SESSION_TOKEN]")
		}
		token := ""
		if len(parts) == 3 {
			token = parts[2]
		}
		provider := credentials.NewStaticCredentialsProvider(parts[0], parts[1], token)
		return provider.Retrieve(ctx)
	}

	profile := opts.Profile
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	if profile != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithSharedConfigProfile(profile))
		if err != nil {
			return aws.Credentials{}, status.Wrap(status.KindAuth, err, "load AWS profile "+profile)
		}
		creds, err := cfg.Credentials.Retrieve(ctx)
		if err != nil {
			return aws.Credentials{}, status.Wrap(status.KindAuth, err, "resolve AWS profile credentials")
		}
		return creds, nil
	}

	key := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if key == "" || secret == "" {
		return aws.Credentials{}, status.Errorf(status.KindAuth,
			"no AWS credentials: pass -a KEY:SECRET, --aws-profile, or set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY")
	}
	provider := credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("AWS_SESSION_TOKEN"))
	return provider.Retrieve(ctx)
}

// inferService derives the service name from an AWS endpoint host.  For
// "lambda.us-east-1.amazonaws.com" that is "lambda"; non-AWS hosts default
// to "execute-api" (API Gateway custom domains).
func inferService(host string) string {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	if strings.HasSuffix(host, ".amazonaws.com") {
		if label, _, ok := strings.Cut(host, "."); ok && label != "" {
			return label
		}
	}
	return "execute-api"
}

// PayloadHash returns the hex SHA-256 of body, the value carried in
// X-Amz-Content-Sha256.  A nil body hashes as the empty payload.  Multipart
// bodies do not use it; they sign with UnsignedPayload.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Sign signs req in place, adding Authorization, X-Amz-Date and, for
// temporary credentials, X-Amz-Security-Token.  payloadHash must be either
// PayloadHash(body) or UnsignedPayload.
func (s *SigV4Signer) Sign(ctx context.Context, req *http.Request, payloadHash string) error {
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	err := s.signer.SignHTTP(ctx, s.creds, req, payloadHash, s.service, s.region, time.Now())
	if err != nil {
		return status.Wrap(status.KindAuth, err, "sign request")
	}
	return nil
}

// Resign strips every signature-related header and signs the request again
// for its (possibly new) host, method and payload.  Called after a redirect,
// where the original Authorization must never leak to the new origin.
func (s *SigV4Signer) Resign(ctx context.Context, req *http.Request, payloadHash string) error {
	for _, h := range sigv4StrippedHeaders {
		req.Header.Del(h)
	}
	if !s.explicitService {
		s.service = inferService(req.URL.Host)
	}
	return s.Sign(ctx, req, payloadHash)
}
