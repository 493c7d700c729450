package quictransport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/Hiro-Washi/da-icn/internal/transport"
)

const (
	// ALPNProtocol identifies the ask-and-get datagram protocol.
	ALPNProtocol = "da-icn-v1"
)

// ServerConfig returns a TLS configuration with a fresh self-signed certificate.
func ServerConfig() (*tls.Config, error) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("generate self-signed certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
	}, nil
}

// ClientConfig returns a TLS configuration for consumers.
// Producers use self-signed certificates, so verification is skipped.
func ClientConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPNProtocol},
	}
}

// DefaultQUICConfig returns the QUIC settings shared by both ends. Requests
// and responses travel as unreliable datagrams, so no streams are accepted.
func DefaultQUICConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams:         true,
		KeepAlivePeriod:         10 * time.Second,
		MaxIdleTimeout:          30 * time.Second,
		DisablePathMTUDiscovery: true,
		MaxIncomingStreams:      -1,
		MaxIncomingUniStreams:   -1,
	}
}

func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"da-icn"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}, nil
}

// Listener is a QUIC listener bound to its own UDP socket.
type Listener struct {
	*quic.Listener
	udp *net.UDPConn
}

// Close stops the listener and releases the socket.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if cerr := l.udp.Close(); err == nil {
		err = cerr
	}
	return err
}

// Listen opens a UDP socket on addr, tunes its buffers and starts a QUIC listener on it.
func Listen(addr string, udpBuffer int, logger *slog.Logger) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	logTune(logger, transport.SetSocketBuffers(udpConn, udpBuffer))

	tlsConfig, err := ServerConfig()
	if err != nil {
		udpConn.Close()
		return nil, err
	}
	ln, err := quic.Listen(udpConn, tlsConfig, DefaultQUICConfig())
	if err != nil {
		udpConn.Close()
		logger.Error("QUIC listen failed", "error", err, "local_addr", udpConn.LocalAddr())
		return nil, err
	}
	logger.Info("QUIC listener created", "local_addr", udpConn.LocalAddr())
	return &Listener{Listener: ln, udp: udpConn}, nil
}

// Dial opens a local UDP socket and establishes a QUIC connection to remote.
// The returned close function releases both the connection and the socket.
func Dial(ctx context.Context, remote string, udpBuffer int, logger *slog.Logger) (*quic.Conn, func() error, error) {
	remoteAddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", remote, err)
	}
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("listen udp: %w", err)
	}
	logTune(logger, transport.SetSocketBuffers(udpConn, udpBuffer))

	logger.Info("QUIC dial starting", "remote_addr", remoteAddr, "local_addr", udpConn.LocalAddr())
	conn, err := quic.Dial(ctx, udpConn, remoteAddr, ClientConfig(), DefaultQUICConfig())
	if err != nil {
		udpConn.Close()
		logger.Error("QUIC dial failed", "error", err, "remote_addr", remoteAddr)
		return nil, nil, err
	}
	logger.Info("QUIC connection established", "remote_addr", remoteAddr)

	closeFn := func() error {
		err := conn.CloseWithError(0, "")
		if cerr := udpConn.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return conn, closeFn, nil
}

func logTune(logger *slog.Logger, res transport.BufferTuning) {
	if !res.Applied {
		logger.Warn("UDP buffer tuning incomplete", "udp", res)
		return
	}
	logger.Debug("UDP buffers tuned", "udp", res)
}
