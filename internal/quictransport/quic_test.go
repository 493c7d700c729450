package quictransport

import (
	"testing"
)

func TestServerConfig(t *testing.T) {
	config, err := ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}

	if len(config.Certificates) == 0 {
		t.Fatal("ServerConfig has no certificates")
	}
	cert := config.Certificates[0]
	if cert.PrivateKey == nil {
		t.Error("Certificate has no private key")
	}
	if len(cert.Certificate) == 0 {
		t.Error("Certificate has no certificate bytes")
	}

	if len(config.NextProtos) != 1 || config.NextProtos[0] != ALPNProtocol {
		t.Errorf("ServerConfig NextProtos = %v, want [%s]", config.NextProtos, ALPNProtocol)
	}
}

func TestClientConfig(t *testing.T) {
	config := ClientConfig()
	if !config.InsecureSkipVerify {
		t.Error("ClientConfig InsecureSkipVerify should be true")
	}
	if len(config.NextProtos) != 1 || config.NextProtos[0] != ALPNProtocol {
		t.Errorf("ClientConfig NextProtos = %v, want [%s]", config.NextProtos, ALPNProtocol)
	}
}

func TestDefaultQUICConfigEnablesDatagrams(t *testing.T) {
	cfg := DefaultQUICConfig()
	if !cfg.EnableDatagrams {
		t.Fatal("datagrams must be enabled")
	}
	if cfg.MaxIdleTimeout <= cfg.KeepAlivePeriod {
		t.Fatalf("idle timeout %s must exceed keep-alive %s", cfg.MaxIdleTimeout, cfg.KeepAlivePeriod)
	}
}
