// Package webhook verifies inbound gateway notifications and dispatches them
// to the reconciliation handlers.
package webhook

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/pkg/logger"
)

// =====================================================
// VERDICT
// =====================================================

type Verdict int

const (
	Verified Verdict = iota
	Rejected
	Indeterminate
)

// String is the value stored in the audit row.
func (v Verdict) String() string {
	switch v {
	case Verified:
		return model.VerificationVerified
	case Rejected:
		return model.VerificationRejected
	default:
		return model.VerificationIndeterminate
	}
}

// HTTPStatus is the response code sent back to the gateway.
func (v Verdict) HTTPStatus() int {
	switch v {
	case Verified:
		return http.StatusOK
	case Rejected:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// =====================================================
// HEADERS
// =====================================================
const (
	HeaderAuthAlgo         = "PAYPAL-AUTH-ALGO"
	HeaderTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	HeaderTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	HeaderTransmissionTime = "PAYPAL-TRANSMISSION-TIME"
	HeaderCertURL          = "PAYPAL-CERT-URL"

	userAgentPrefix   = "PayPal/"
	supportedAuthAlgo = "SHA256withRSA"
	maxCertBytes      = 64 << 10
)

var requiredHeaders = []string{
	HeaderAuthAlgo,
	HeaderTransmissionSig,
	HeaderTransmissionID,
	HeaderTransmissionTime,
	HeaderCertURL,
}

// errFetch marks certificate retrieval problems, which make the verdict indeterminate.
var errFetch = errors.New("certificate unavailable")

// =====================================================
// VERIFIER
// =====================================================

type Config struct {
	WebhookID          string
	CertHostSuffixes   []string // default .paypal.com
	CertFetchTimeout   time.Duration
	PostbackSessionKey string // session used for the postback token
}

type Verifier struct {
	cfg      Config
	http     *http.Client
	gateways gateway.Provider

	mu    sync.RWMutex
	certs map[string]*x509.Certificate
}

type VerifierOption func(*Verifier)

// WithHTTPClient replaces the client used to download signing certificates.
func WithHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) { v.http = c }
}

func NewVerifier(cfg Config, gateways gateway.Provider, opts ...VerifierOption) *Verifier {
	if len(cfg.CertHostSuffixes) == 0 {
		cfg.CertHostSuffixes = []string{".paypal.com"}
	}
	if cfg.CertFetchTimeout <= 0 {
		cfg.CertFetchTimeout = 10 * time.Second
	}
	if cfg.PostbackSessionKey == "" {
		cfg.PostbackSessionKey = "webhook"
	}
	v := &Verifier{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.CertFetchTimeout},
		gateways: gateways,
		certs:    make(map[string]*x509.Certificate),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ShouldRespond reports whether the request looks like a gateway
// notification at all. Anything else is ignored without verification.
func (v *Verifier) ShouldRespond(h http.Header, body []byte) bool {
	for _, name := range requiredHeaders {
		if h.Get(name) == "" {
			return false
		}
	}
	if !strings.HasPrefix(h.Get("User-Agent"), userAgentPrefix) {
		return false
	}
	var probe struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.EventType != ""
}

// Verify checks the signature locally and falls back to asking the gateway
// when the signing certificate cannot be fetched.
func (v *Verifier) Verify(ctx context.Context, h http.Header, body []byte) Verdict {
	verdict := v.verifyLocally(ctx, h, body)
	if verdict == Indeterminate {
		verdict = v.verifyByPostback(ctx, h, body)
	}
	metrics.WebhookVerdictsTotal.WithLabelValues(verdict.String()).Inc()
	return verdict
}

func (v *Verifier) verifyLocally(ctx context.Context, h http.Header, body []byte) Verdict {
	fields := map[string]interface{}{"transmission_id": h.Get(HeaderTransmissionID)}

	if !strings.EqualFold(h.Get(HeaderAuthAlgo), supportedAuthAlgo) {
		fields["auth_algo"] = h.Get(HeaderAuthAlgo)
		logger.Warn("Webhook uses unsupported signature algorithm", fields)
		return Rejected
	}

	certURL, err := v.checkCertURL(h.Get(HeaderCertURL))
	if err != nil {
		fields["cert_url"] = h.Get(HeaderCertURL)
		logger.Warn("Webhook certificate URL rejected", fields)
		return Rejected
	}

	sig, err := base64.StdEncoding.DecodeString(h.Get(HeaderTransmissionSig))
	if err != nil {
		logger.Warn("Webhook signature is not valid base64", fields)
		return Rejected
	}

	cert, err := v.certificate(ctx, certURL)
	if err != nil {
		// not a forgery signal; let the postback decide
		logger.Debug("Webhook certificate unavailable: " + err.Error())
		return Indeterminate
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return Indeterminate
	}
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		logger.Warn("Webhook signed with a certificate outside its validity period", fields)
		return Rejected
	}

	digest := sha256.Sum256([]byte(SignableString(h, v.cfg.WebhookID, body)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		logger.Warn("Webhook signature mismatch", fields)
		return Rejected
	}
	return Verified
}

// SignableString is transmission_id|transmission_time|webhook_id|crc32(body).
func SignableString(h http.Header, webhookID string, body []byte) string {
	return fmt.Sprintf("%s|%s|%s|%d",
		h.Get(HeaderTransmissionID),
		h.Get(HeaderTransmissionTime),
		webhookID,
		crc32.ChecksumIEEE(body),
	)
}

func (v *Verifier) checkCertURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("certificate URL must use https")
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range v.cfg.CertHostSuffixes {
		suffix = strings.ToLower(suffix)
		if strings.HasPrefix(suffix, ".") {
			if strings.HasSuffix(host, suffix) || host == suffix[1:] {
				return u.String(), nil
			}
			continue
		}
		if host == suffix {
			return u.String(), nil
		}
	}
	return "", fmt.Errorf("certificate host %s is not allowed", host)
}

func (v *Verifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	v.mu.RLock()
	cert, ok := v.certs[certURL]
	v.mu.RUnlock()
	if ok {
		return cert, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFetch, err)
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errFetch, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCertBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFetch, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", errFetch)
	}
	cert, err = x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFetch, err)
	}

	v.mu.Lock()
	v.certs[certURL] = cert
	v.mu.Unlock()
	return cert, nil
}

func (v *Verifier) verifyByPostback(ctx context.Context, h http.Header, body []byte) Verdict {
	if v.gateways == nil {
		return Indeterminate
	}
	status, err := v.gateways.ForSession(v.cfg.PostbackSessionKey).VerifyWebhookSignature(ctx, gateway.VerifySignatureRequest{
		AuthAlgo:         h.Get(HeaderAuthAlgo),
		CertURL:          h.Get(HeaderCertURL),
		TransmissionID:   h.Get(HeaderTransmissionID),
		TransmissionSig:  h.Get(HeaderTransmissionSig),
		TransmissionTime: h.Get(HeaderTransmissionTime),
		WebhookID:        v.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(body),
	})
	if err != nil {
		logger.Warn("Webhook postback verification unavailable", map[string]interface{}{
			"transmission_id": h.Get(HeaderTransmissionID),
			"error":           err.Error(),
		})
		return Indeterminate
	}

	switch status {
	case gateway.VerificationStatusSuccess:
		return Verified
	case gateway.VerificationStatusFailure:
		logger.Warn("Webhook rejected by gateway postback", map[string]interface{}{
			"transmission_id": h.Get(HeaderTransmissionID),
		})
		return Rejected
	default:
		return Indeterminate
	}
}
