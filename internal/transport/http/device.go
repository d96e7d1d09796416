package http

import (
	"context"
	"net/http"
	"time"

	"avtotest-service/internal/admission"
)

const (
	// DefaultDeviceCookie holds the trust token of the current browser.
	DefaultDeviceCookie = "avt_device"
	// FingerprintHeader carries the client-computed device fingerprint.
	FingerprintHeader = "X-Device-Fingerprint"

	deviceCookieMaxAge = 365 * 24 * time.Hour
)

// cookieTokenStore keeps the trust token in a long-lived cookie of one request.
type cookieTokenStore struct {
	w      http.ResponseWriter
	r      *http.Request
	name   string
	secure bool
}

func newCookieTokenStore(w http.ResponseWriter, r *http.Request, name string, secure bool) *cookieTokenStore {
	return &cookieTokenStore{w: w, r: r, name: name, secure: secure}
}

func (s *cookieTokenStore) LoadToken(_ context.Context) (string, bool, error) {
	c, err := s.r.Cookie(s.name)
	if err == http.ErrNoCookie {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return c.Value, c.Value != "", nil
}

// SaveToken sets the cookie on the response. On a websocket route the
// upgrade discards it; clients call the device check first.
func (s *cookieTokenStore) SaveToken(_ context.Context, token string) error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func requestSignals(r *http.Request) admission.Signals {
	fp := r.Header.Get(FingerprintHeader)
	if fp == "" {
		fp = r.URL.Query().Get("fingerprint")
	}
	return admission.Signals{UserAgent: r.UserAgent(), Fingerprint: fp}
}

type deviceCheckResponse struct {
	admission.Status
	Outcome    admission.Outcome `json:"outcome"`
	DeviceType string            `json:"deviceType,omitempty"`
	Used       int               `json:"used"`
	Limit      int               `json:"limit"`
}

func (s *Server) handleDeviceCheck(w http.ResponseWriter, r *http.Request) {
	d := s.admit(w, r)
	writeJSON(w, http.StatusOK, deviceCheckResponse{
		Status:     d.Status(),
		Outcome:    d.Outcome,
		DeviceType: string(d.DeviceType),
		Used:       d.Used,
		Limit:      d.Limit,
	})
}
