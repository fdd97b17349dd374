package orkestro

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// SignatureType selects where the HMAC signature material is carried.
type SignatureType int

const (
	// SignatureHeaders emits the signature in the Authorization header.
	SignatureHeaders SignatureType = iota
	// SignatureQueryParams emits the signature as query parameters, the
	// presigned-URL style.
	SignatureQueryParams
)

// SigningOptions are the scheme-specific signing properties attached to an
// AuthSchemeOption.
type SigningOptions struct {
	// DoubleURIEncode encodes path segments a second time when building
	// the canonical URI.
	DoubleURIEncode bool
	// ContentSHA256Header emits the payload hash as a request header.
	ContentSHA256Header bool
	// NormalizeURIPath cleans the request path before canonicalization.
	NormalizeURIPath bool
	// PayloadHashOverride fixes the payload hash for unsigned or streaming
	// payloads whose true body must not be read. When set, the signer never
	// touches the body.
	PayloadHashOverride string
	// SignatureType selects header or query-parameter signatures.
	SignatureType SignatureType
	// ExpiresIn bounds query-parameter signature validity.
	ExpiresIn time.Duration
}

// Signer applies a signing transform to a request. Signing is a pure
// function of (identity, canonical request, options): identical inputs
// yield identical signature material. A signer only produces or augments
// headers and query parameters; it must not alter the body unless
// PayloadHashOverride directs it away from the body entirely.
type Signer interface {
	SignRequest(ctx context.Context, identity *Identity, req *http.Request, opts SigningOptions) error
}

// unsignedPayload is the payload hash used when the body cannot be read
// twice and no override was supplied.
const unsignedPayload = "UNSIGNED-PAYLOAD"

const (
	hmacAlgorithm       = "ORK1-HMAC-SHA256"
	hmacRequestTerminal = "ork1_request"

	headerDate          = "X-Ork-Date"
	headerContentSHA256 = "X-Ork-Content-Sha256"
	headerSecurityToken = "X-Ork-Security-Token"

	queryAlgorithm     = "X-Ork-Algorithm"
	queryCredential    = "X-Ork-Credential"
	queryDate          = "X-Ork-Date"
	queryExpires       = "X-Ork-Expires"
	querySignedHeaders = "X-Ork-SignedHeaders"
	querySignature     = "X-Ork-Signature"
)

// HMACScheme signs requests with an HMAC-SHA256 canonical-request chain
// scoped to a region and service, in headers or query parameters.
type HMACScheme struct {
	region  string
	service string
	clock   func() time.Time
}

// NewHMACScheme creates the HMAC scheme for a signing region and service.
func NewHMACScheme(region, service string) *HMACScheme {
	return &HMACScheme{region: region, service: service, clock: time.Now}
}

// SchemeID implements the AuthScheme interface.
func (s *HMACScheme) SchemeID() string { return SchemeIDSigV4 }

// Signer implements the AuthScheme interface.
func (s *HMACScheme) Signer() Signer {
	return &HMACSigner{Region: s.region, Service: s.service, Clock: s.clock}
}

// HMACSigner implements the canonical-request HMAC signature. The Clock
// fixes the signing timestamp; injecting a constant clock makes signatures
// reproducible.
type HMACSigner struct {
	Region  string
	Service string
	Clock   func() time.Time
}

// SignRequest implements the Signer interface.
func (s *HMACSigner) SignRequest(_ context.Context, identity *Identity, req *http.Request, opts SigningOptions) error {
	creds, ok := identity.Value().(Credentials)
	if !ok {
		return fmt.Errorf("hmac signer requires Credentials identity, got %T", identity.Value())
	}

	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	ts := now().UTC()
	amzDate := ts.Format("20060102T150405Z")
	dateStamp := ts.Format("20060102")

	payloadHash, err := payloadHash(req, opts)
	if err != nil {
		return err
	}

	scope := strings.Join([]string{dateStamp, s.Region, s.Service, hmacRequestTerminal}, "/")
	credential := creds.AccessKeyID + "/" + scope

	switch opts.SignatureType {
	case SignatureQueryParams:
		q := req.URL.Query()
		q.Set(queryAlgorithm, hmacAlgorithm)
		q.Set(queryCredential, credential)
		q.Set(queryDate, amzDate)
		if opts.ExpiresIn > 0 {
			q.Set(queryExpires, fmt.Sprintf("%d", int64(opts.ExpiresIn.Seconds())))
		}
		q.Set(querySignedHeaders, "host")
		req.URL.RawQuery = q.Encode()

		headers := [][2]string{{"host", hostOf(req)}}
		canonical := canonicalRequest(req, headers, payloadHash, opts)
		signature := s.signature(creds, dateStamp, amzDate, scope, canonical)

		q = req.URL.Query()
		q.Set(querySignature, signature)
		req.URL.RawQuery = q.Encode()
		return nil

	default:
		req.Header.Set(headerDate, amzDate)
		if opts.ContentSHA256Header {
			req.Header.Set(headerContentSHA256, payloadHash)
		}
		if creds.SessionToken != "" {
			req.Header.Set(headerSecurityToken, creds.SessionToken)
		}

		headers := [][2]string{{"host", hostOf(req)}, {strings.ToLower(headerDate), amzDate}}
		if opts.ContentSHA256Header {
			headers = append(headers, [2]string{strings.ToLower(headerContentSHA256), payloadHash})
		}
		if creds.SessionToken != "" {
			headers = append(headers, [2]string{strings.ToLower(headerSecurityToken), creds.SessionToken})
		}
		sort.Slice(headers, func(i, j int) bool { return headers[i][0] < headers[j][0] })

		canonical := canonicalRequest(req, headers, payloadHash, opts)
		signature := s.signature(creds, dateStamp, amzDate, scope, canonical)

		req.Header.Set("Authorization", fmt.Sprintf(
			"%s Credential=%s, SignedHeaders=%s, Signature=%s",
			hmacAlgorithm, credential, signedHeaderNames(headers), signature))
		return nil
	}
}

func (s *HMACSigner) signature(creds Credentials, dateStamp, amzDate, scope, canonical string) string {
	stringToSign := strings.Join([]string{
		hmacAlgorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonical)),
	}, "\n")

	kDate := hmacSHA256([]byte("ORK1"+creds.SecretAccessKey), dateStamp)
	kRegion := hmacSHA256(kDate, s.Region)
	kService := hmacSHA256(kRegion, s.Service)
	kSigning := hmacSHA256(kService, hmacRequestTerminal)
	return hex.EncodeToString(hmacSHA256(kSigning, stringToSign))
}

// canonicalRequest builds the canonical form: method, canonical URI,
// canonical query, canonical headers, signed header names and payload hash,
// newline-joined.
func canonicalRequest(req *http.Request, headers [][2]string, payloadHash string, opts SigningOptions) string {
	var hdrs strings.Builder
	for _, h := range headers {
		hdrs.WriteString(h[0])
		hdrs.WriteByte(':')
		hdrs.WriteString(strings.TrimSpace(h[1]))
		hdrs.WriteByte('\n')
	}
	return strings.Join([]string{
		req.Method,
		canonicalURI(req.URL, opts),
		canonicalQuery(req.URL),
		hdrs.String(),
		signedHeaderNames(headers),
		payloadHash,
	}, "\n")
}

func signedHeaderNames(headers [][2]string) string {
	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = h[0]
	}
	return strings.Join(names, ";")
}

func canonicalURI(u *url.URL, opts SigningOptions) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if opts.NormalizeURIPath {
		p = path.Clean(p)
		if p == "." {
			p = "/"
		}
		if strings.HasSuffix(u.EscapedPath(), "/") && p != "/" {
			p += "/"
		}
	}
	if opts.DoubleURIEncode {
		segments := strings.Split(p, "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		p = strings.Join(segments, "/")
	}
	return p
}

// canonicalQuery sorts query parameters by key then value, excluding the
// pending signature parameter.
func canonicalQuery(u *url.URL) string {
	values := u.Query()
	values.Del(querySignature)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var pairs []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(pairs, "&")
}

// payloadHash computes the hash the signature covers. The override wins
// unconditionally; a replayable body is read through GetBody so the original
// stream stays untouched; a non-replayable body is never read.
func payloadHash(req *http.Request, opts SigningOptions) (string, error) {
	if opts.PayloadHashOverride != "" {
		return opts.PayloadHashOverride, nil
	}
	if req.Body == nil {
		return hexSHA256(nil), nil
	}
	if req.GetBody == nil {
		return unsignedPayload, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return "", fmt.Errorf("reading payload for signing: %w", err)
	}
	defer body.Close()
	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return "", fmt.Errorf("hashing payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hostOf(req *http.Request) string {
	if req.Host != "" {
		return req.Host
	}
	return req.URL.Host
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
