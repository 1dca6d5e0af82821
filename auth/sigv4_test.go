package auth_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/quicpulse/quicpulse/auth"
)

func newSigner(t *testing.T, host string) *auth.SigV4Signer {
	t.Helper()
	s, err := auth.NewSigV4Signer(context.Background(), auth.SigV4Options{
		Credentials: "AKIDEXAMPLE:secret",
		Region:      "us-east-1",
	}, host)
	if err != nil {
		t.Fatalf("NewSigV4Signer error: %v", err)
	}
	return s
}

func TestSigV4_SignAddsAuthorization(t *testing.T) {
	s := newSigner(t, "lambda.us-east-1.amazonaws.com")
	req, _ := http.NewRequest("GET", "https://lambda.us-east-1.amazonaws.com/functions", nil)
	body := []byte{}
	if err := s.Sign(context.Background(), req, auth.PayloadHash(body)); err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	authz := req.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "AWS4-HMAC-SHA256 ") {
		t.Errorf("Authorization = %q", authz)
	}
	if !strings.Contains(authz, "Credential=AKIDEXAMPLE/") {
		t.Errorf("Authorization missing credential scope: %q", authz)
	}
	if req.Header.Get("X-Amz-Date") == "" {
		t.Error("X-Amz-Date not set")
	}
	if req.Header.Get("X-Amz-Content-Sha256") == "" {
		t.Error("X-Amz-Content-Sha256 not set")
	}
}

func TestSigV4_ResignForNewHost(t *testing.T) {
	s := newSigner(t, "a.example.com")

	first, _ := http.NewRequest("POST", "https://a.example.com/x", strings.NewReader("body"))
	hash := auth.PayloadHash([]byte("body"))
	if err := s.Sign(context.Background(), first, hash); err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	firstAuthz := first.Header.Get("Authorization")

	// 301 to host B demotes to GET with no body.
	second, _ := http.NewRequest("GET", "https://b.example.com/x", nil)
	second.Header = first.Header.Clone()
	if err := s.Resign(context.Background(), second, auth.PayloadHash(nil)); err != nil {
		t.Fatalf("Resign error: %v", err)
	}
	secondAuthz := second.Header.Get("Authorization")

	if firstAuthz == secondAuthz {
		t.Error("redirected request must carry a different signature")
	}
	if !strings.Contains(secondAuthz, "SignedHeaders=") {
		t.Errorf("Authorization = %q", secondAuthz)
	}
	if !strings.Contains(secondAuthz, "host") {
		t.Errorf("host must be a signed header: %q", secondAuthz)
	}
	if second.Header.Get("X-Amz-Content-Sha256") != auth.PayloadHash(nil) {
		t.Error("payload hash must reflect the dropped body")
	}
}

func TestSigV4_UnsignedPayloadForMultipart(t *testing.T) {
	s := newSigner(t, "s3.amazonaws.com")
	req, _ := http.NewRequest("PUT", "https://s3.amazonaws.com/bucket/key", nil)
	if err := s.Sign(context.Background(), req, auth.UnsignedPayload); err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if req.Header.Get("X-Amz-Content-Sha256") != auth.UnsignedPayload {
		t.Errorf("X-Amz-Content-Sha256 = %q", req.Header.Get("X-Amz-Content-Sha256"))
	}
}

func TestSigV4_MissingCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_PROFILE", "")
	_, err := auth.NewSigV4Signer(context.Background(), auth.SigV4Options{}, "example.com")
	if err == nil {
		t.Error("expected error with no credential source")
	}
}

func TestSigV4_RegionDefault(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	s, err := auth.NewSigV4Signer(context.Background(), auth.SigV4Options{
		Credentials: "k:s",
	}, "example.com")
	if err != nil {
		t.Fatalf("NewSigV4Signer error: %v", err)
	}
	req, _ := http.NewRequest("GET", "https://example.com/", nil)
	if err := s.Sign(context.Background(), req, auth.PayloadHash(nil)); err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if !strings.Contains(req.Header.Get("Authorization"), "/us-east-1/") {
		t.Errorf("default region missing from scope: %q", req.Header.Get("Authorization"))
	}
}

func TestSigV4_ServiceInference(t *testing.T) {
	s, err := auth.NewSigV4Signer(context.Background(), auth.SigV4Options{
		Credentials: "k:s", Region: "eu-west-1",
	}, "dynamodb.eu-west-1.amazonaws.com")
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("POST", "https://dynamodb.eu-west-1.amazonaws.com/", nil)
	if err := s.Sign(context.Background(), req, auth.PayloadHash(nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(req.Header.Get("Authorization"), "/dynamodb/") {
		t.Errorf("service not inferred from host: %q", req.Header.Get("Authorization"))
	}
}
