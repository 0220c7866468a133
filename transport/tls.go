package transport

import (
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/crypto/acme/autocert"
)

// DialTLS opens a TLS connection to addr with the given config (nil for defaults).
func DialTLS(addr string, cfg *tls.Config) (net.Conn, error) {
	return tls.Dial("tcp", addr, cfg)
}

// TLSListener binds a TLS listener on addr with a certificate loaded from the
// given PEM files.
func TLSListener(addr, cert, key string) (net.Listener, error) {
	certificate, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, err
	}

	return tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{certificate},
	})
}

// AutoTLSListener binds a TLS listener on addr, obtaining and renewing
// certificates for the domains automatically via ACME.
func AutoTLSListener(addr string, domains ...string) (net.Listener, error) {
	manager := &autocert.Manager{
		Cache:      autocert.DirCache(cacheDir()),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
	}

	return tls.Listen("tcp", addr, manager.TLSConfig())
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return "/"
}

func cacheDir() string {
	const base = "golang-autocert"
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches", base)
	case "windows":
		for _, ev := range []string{"APPDATA", "CSIDL_APPDATA", "TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return filepath.Join(v, base)
			}
		}
		// Worst case:
		return filepath.Join(homeDir(), base)
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, base)
	}
	return filepath.Join(homeDir(), ".cache", base)
}
