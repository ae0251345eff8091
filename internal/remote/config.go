package remote

import (
	"time"

	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 15 * time.Second

// Config carries a fully-resolved connection target. Credential material is
// already decrypted by the caller (see the profiles package): Password is a
// plaintext password, Signer a parsed private key. At least one must be set.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Signer   ssh.Signer
	Timeout  time.Duration
}

func (c Config) authMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if c.Signer != nil {
		methods = append(methods, ssh.PublicKeys(c.Signer))
	}
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	return methods
}

func (c Config) dialTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultDialTimeout
}
