package admission

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"avtotest-service/internal/domain"
)

// Signals carries the client-side evidence an admission check works from.
type Signals struct {
	UserAgent   string
	Fingerprint string
}

// Classifier maps device signals to a slot set. Implementations are heuristic
// and may be spoofed by the client.
type Classifier interface {
	Classify(signals Signals) domain.DeviceType
}

var mobileUserAgent = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// UserAgentClassifier treats well-known mobile user agents as mobile and everything else as pc.
type UserAgentClassifier struct{}

func (UserAgentClassifier) Classify(signals Signals) domain.DeviceType {
	if mobileUserAgent.MatchString(signals.UserAgent) {
		return domain.DeviceMobile
	}
	return domain.DevicePC
}

// ErrNoFingerprint is returned when the client did not supply a fingerprint.
var ErrNoFingerprint = errors.New("device fingerprint unavailable")

// Fingerprinter resolves the opaque identifier of the current browser install.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, signals Signals) (string, error)
}

// ClientFingerprinter trusts the identifier computed by the client-side fingerprinting library.
type ClientFingerprinter struct{}

func (ClientFingerprinter) Fingerprint(ctx context.Context, signals Signals) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fp := strings.TrimSpace(signals.Fingerprint)
	if fp == "" {
		return "", ErrNoFingerprint
	}
	return fp, nil
}
