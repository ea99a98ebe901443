// Package ipchecker restricts internal endpoints to clients from a trusted subnet.
package ipchecker

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/shortlink/internal/logger"
)

var ErrNoClientIP = errors.New("unable to determine client IP")

// IPChecker matches client addresses against a trusted CIDR. A checker built
// from an empty string trusts nobody.
type IPChecker struct {
	trustedSubnet *net.IPNet
}

// New parses trustedSubnet in CIDR notation, e.g. "10.0.0.0/8".
func New(trustedSubnet string) (*IPChecker, error) {
	trustedSubnet = strings.TrimSpace(trustedSubnet)
	if trustedSubnet == "" {
		return &IPChecker{}, nil
	}

	_, allowedNet, err := net.ParseCIDR(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling: %w", err)
	}

	return &IPChecker{trustedSubnet: allowedNet}, nil
}

func (checker *IPChecker) Check(clientIP net.IP) bool {
	return !checker.IsTrustedSubnetEmpty() && clientIP != nil && checker.trustedSubnet.Contains(clientIP)
}

// GetClientIP takes the address from X-Real-IP, then the first X-Forwarded-For
// hop, then RemoteAddr.
//
// The headers are client controlled. The service must only be reachable through
// a trusted reverse proxy that overwrites them, otherwise any caller can claim an
// address inside the trusted subnet.
func (checker *IPChecker) GetClientIP(request *http.Request) (net.IP, error) {
	if ip := net.ParseIP(strings.TrimSpace(request.Header.Get("X-Real-IP"))); ip != nil {
		return ip, nil
	}

	if xff := request.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip, nil
		}
		return nil, ErrNoClientIP
	}

	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/GetClientIP(): error while `net.SplitHostPort()` calling: %w", err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, ErrNoClientIP
	}

	return ip, nil
}

func (checker *IPChecker) IsTrustedSubnetEmpty() bool {
	return checker == nil || checker.trustedSubnet == nil
}

// TrustedOnly answers 403 to every request whose client IP is outside the trusted subnet.
func (checker *IPChecker) TrustedOnly(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if checker.IsTrustedSubnetEmpty() {
			response.WriteHeader(http.StatusForbidden)
			return
		}

		clientIP, err := checker.GetClientIP(request)
		if err != nil || !checker.Check(clientIP) {
			logger.Log.Infow("rejected request from untrusted address", "remote_addr", request.RemoteAddr, "uri", request.RequestURI)
			response.WriteHeader(http.StatusForbidden)
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
