package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/remoteops/internal/errors"
	"golang.org/x/crypto/ssh"
)

// authMethods turns a credential into ssh auth methods, key first.
func authMethods(cred Credential) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cred.KeyPath != "" {
		signer, err := loadSigner(cred.KeyPath, cred.Password)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cred.Password != "" {
		methods = append(methods,
			ssh.Password(cred.Password),
			ssh.KeyboardInteractive(passwordChallenge(cred.Password)),
		)
	}

	return methods, nil
}

// loadSigner reads a private key, using passphrase when the key is encrypted.
func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	keyPath = expandPath(keyPath)

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			err.Error(),
			"Check the privateKey path exists and is readable")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !stderrors.As(err, &missing) && !isEncryptedPEM(key) {
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("can't parse private key %s: %v", keyPath, err),
			"The key must be an OpenSSH or PEM private key")
	}

	if passphrase == "" {
		encErr := &EncryptedKeyError{Path: keyPath}
		return nil, errors.WrapWithCode(encErr, errors.ErrConnection,
			encErr.Error(),
			"Pass the key passphrase as the password argument")
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("can't decrypt private key %s: %v", keyPath, err),
			"Check the passphrase")
	}
	return signer, nil
}

// passwordChallenge answers every keyboard-interactive prompt with the password.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// isEncryptedPEM checks if PEM data contains encryption markers.
func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED"))
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
