package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"

	"obconsent/internal/assertion"
	"obconsent/internal/platform/config"
)

// buildKeyProvider loads the PS256 signing key from the configured PEM file.
// Without a configured path it generates an ephemeral key so local runs work
// out of the box; tokens signed with it do not survive a restart.
func buildKeyProvider(cfg config.AssertionConfig, log *slog.Logger) (*assertion.StaticProvider, error) {
	if cfg.PrivateKeyPath == "" {
		log.Warn("no signing key configured, generating ephemeral key", "keyId", cfg.KeyID)
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		return assertion.NewStaticProvider(cfg.KeyID, key, assertion.AlgorithmPS256), nil
	}

	raw, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := parseRSAPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing key %s: %w", cfg.PrivateKeyPath, err)
	}
	return assertion.NewStaticProvider(cfg.KeyID, key, assertion.AlgorithmPS256), nil
}

func parseRSAPrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, want *rsa.PrivateKey", parsed)
	}
	return key, nil
}
