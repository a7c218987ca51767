package core

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"headerswitch/logger"

	"github.com/elazarl/goproxy"
)

// ProxyMode selects how the proxy rewrites request headers.
type ProxyMode string

const (
	// ModeDeclarative evaluates the directives installed in a MemoryEngine.
	ModeDeclarative ProxyMode = "declarative"
	// ModeLive applies the flat rule list of a LiveInterceptor.
	ModeLive ProxyMode = "live"
)

type ProxyOptions struct {
	Mode       ProxyMode
	Engine     *MemoryEngine
	Live       *LiveInterceptor
	CACertPath string // optional; without a CA, HTTPS is tunnelled untouched
	CAKeyPath  string
}

type proxyLogAdapter struct{}

func (proxyLogAdapter) Printf(format string, v ...interface{}) {
	logger.ProxyDebug(format, v...)
}

// GenerateAndSaveCA writes a fresh self-signed CA certificate and RSA key in PEM form.
func GenerateAndSaveCA(certPath, keyPath string) error {
	cert, key, err := generateCA("headerswitch MITM Proxy CA")
	if err != nil {
		logger.Error("Failed to generate CA: %v", err)
		return fmt.Errorf("failed to generate CA: %w", err)
	}

	for _, p := range []string{certPath, keyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		logger.Error("Failed to write CA certificate to %s: %v", certPath, err)
		return fmt.Errorf("failed to write CA certificate to %s: %w", certPath, err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal CA private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		logger.Error("Failed to write CA private key to %s: %v", keyPath, err)
		return fmt.Errorf("failed to write CA private key to %s: %w", keyPath, err)
	}
	logger.Info("CA certificate saved to %s, key saved to %s", certPath, keyPath)
	return nil
}

func generateCA(commonName string) (*x509.Certificate, *rsa.PrivateKey, error) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"headerswitch"},
			CommonName:   commonName,
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse generated CA certificate: %w", err)
	}
	return cert, privKey, nil
}

func loadCA(certPath, keyPath string) (*tls.Certificate, error) {
	ca, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading CA key pair (%s, %s): %w", certPath, keyPath, err)
	}
	if ca.Leaf == nil {
		leaf, err := x509.ParseCertificate(ca.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parsing CA certificate %s: %w", certPath, err)
		}
		ca.Leaf = leaf
	}
	if !ca.Leaf.IsCA {
		return nil, fmt.Errorf("certificate %s is not a CA certificate", certPath)
	}
	logger.ProxyInfo("CA certificate and key loaded from %s", certPath)
	return &ca, nil
}

// promoteHostHeader moves a rewritten Host header into r.Host, which is what the
// outgoing transport actually sends.
func promoteHostHeader(r *http.Request) {
	if host := r.Header.Get("Host"); host != "" {
		r.Host = host
		r.Header.Del("Host")
	}
}

// NewHeaderProxy builds a forward proxy that rewrites request headers according to opts.
func NewHeaderProxy(opts ProxyOptions) (*goproxy.ProxyHttpServer, error) {
	switch opts.Mode {
	case ModeDeclarative:
		if opts.Engine == nil {
			return nil, errors.New("declarative proxy mode needs an engine")
		}
	case ModeLive:
		if opts.Live == nil {
			return nil, errors.New("live proxy mode needs a live interceptor")
		}
	default:
		return nil, fmt.Errorf("unknown proxy mode %q", opts.Mode)
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = proxyLogAdapter{}

	if opts.CACertPath != "" && opts.CAKeyPath != "" {
		ca, err := loadCA(opts.CACertPath, opts.CAKeyPath)
		if err != nil {
			return nil, fmt.Errorf("could not load CA certificate/key: %w. Run 'proxy init-ca' or check config", err)
		}
		proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			logger.ProxyDebug("HandleConnect for session %d, host %s", ctx.Session, host)
			return &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(ca)}, host
		}))
	} else {
		logger.ProxyInfo("No CA configured: HTTPS requests are tunnelled without header rewriting.")
	}

	proxy.OnRequest().DoFunc(
		func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			switch opts.Mode {
			case ModeLive:
				if opts.Live.HandleRequest(r) {
					logger.ProxyDebug("REQ: %s %s - live rules applied", r.Method, r.URL.String())
				}
			default:
				resourceType := ResourceTypeOf(r)
				if n := opts.Engine.ApplyToHeader(r.URL.String(), resourceType, r.Header); n > 0 {
					logger.ProxyDebug("REQ: %s %s (%s) - %d header modifications", r.Method, r.URL.String(), resourceType, n)
				}
			}
			promoteHostHeader(r)
			return r, nil
		})

	return proxy, nil
}

// StartHeaderProxy serves the header proxy on port until ctx is cancelled.
func StartHeaderProxy(ctx context.Context, port string, opts ProxyOptions) error {
	proxy, err := NewHeaderProxy(opts)
	if err != nil {
		return err
	}
	server := &http.Server{Addr: ":" + port, Handler: proxy}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ProxyError("Header proxy graceful shutdown failed: %v", err)
		}
	}()

	logger.ProxyInfo("Header proxy starting on :%s (mode %s)", port, opts.Mode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("header proxy on :%s: %w", port, err)
	}
	return nil
}
