package o3chat

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// TransportOptions configures the HTTP client built by NewHTTPClient.
type TransportOptions struct {
	// CertificateFile is a PEM or DER certificate to trust. When set, it is
	// the only trusted root; self-signed development servers need this.
	CertificateFile string
	// InsecureHTTP talks plain HTTP and ignores CertificateFile.
	InsecureHTTP bool
	// ConnectTimeout bounds dialing and the TLS handshake. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// RequestTimeout bounds each request. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// NewHTTPClient builds the client used for all server requests.
func NewHTTPClient(opts TransportOptions) (*http.Client, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout

	if !opts.InsecureHTTP && opts.CertificateFile != "" {
		pool, err := loadCertPool(opts.CertificateFile)
		if err != nil {
			return nil, &TransportError{Op: "tls", Err: err}
		}
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &http.Client{Transport: transport, Timeout: requestTimeout}, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if pool.AppendCertsFromPEM(data) {
		return pool, nil
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("no certificate found in %s", path), err)
	}
	pool.AddCert(cert)
	return pool, nil
}
