//go:build e2e

// Package framework provides the containers and helpers the end-to-end
// suite mounts against: an SSH server with a bind-mounted data directory,
// a Localstack S3 endpoint, and small utilities shared by the tests.
package framework

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Keypair is an RSA keypair in the two encodings the tests need: the
// private key as PEM for the mount config, the public key in
// authorized_keys format for the container.
type Keypair struct {
	PrivatePEM    string
	AuthorizedKey string
}

// NewKeypair generates a 2048-bit RSA keypair.
func NewKeypair() (*Keypair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	return &Keypair{
		PrivatePEM:    string(privPEM),
		AuthorizedKey: string(ssh.MarshalAuthorizedKey(pub)),
	}, nil
}
