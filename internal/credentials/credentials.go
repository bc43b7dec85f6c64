// Package credentials resolves the caller identity sent with every control plane call.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/ini.v1"
)

// Credentials is the pair of tokens attached to each control plane call.
// IDToken goes in "Authorization: Bearer", AccessToken in "x-access-token".
type Credentials struct {
	IDToken     string
	AccessToken string
}

// ErrNoCredentials is returned when a source has nothing to offer.
var ErrNoCredentials = errors.New("no credentials available")

// Valid reports whether both tokens are present.
func (c Credentials) Valid() bool {
	return c.IDToken != "" && c.AccessToken != ""
}

// Source supplies credentials. Callers resolve before every request so
// long-running uploads pick up refreshed tokens.
type Source interface {
	Resolve(ctx context.Context) (Credentials, error)
}

// Static returns the same credentials on every call.
type Static Credentials

// Resolve implements Source.
func (s Static) Resolve(ctx context.Context) (Credentials, error) {
	c := Credentials(s)
	if !c.Valid() {
		return Credentials{}, ErrNoCredentials
	}
	return c, nil
}

// File reads credentials from an INI token file on every Resolve:
//
//	[default]
//	id_token = eyJ...
//	access_token = eyJ...
type File struct {
	Path string
}

// Resolve implements Source.
func (f File) Resolve(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	iniFile, err := ini.Load(f.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read token file %s: %w", f.Path, err)
	}

	sec := iniFile.Section("default")
	c := Credentials{
		IDToken:     sec.Key("id_token").String(),
		AccessToken: sec.Key("access_token").String(),
	}
	if !c.Valid() {
		return Credentials{}, fmt.Errorf("%w: token file %s needs id_token and access_token", ErrNoCredentials, f.Path)
	}
	return c, nil
}

// WriteFile stores credentials in the INI token file format read by File.
func WriteFile(path string, c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	iniFile := ini.Empty()
	sec, err := iniFile.NewSection("default")
	if err != nil {
		return err
	}
	sec.Key("id_token").SetValue(c.IDToken)
	sec.Key("access_token").SetValue(c.AccessToken)

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set token file permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save token file: %w", err)
	}
	return nil
}

// Chain tries each source in order and returns the first valid credentials.
type Chain []Source

// Resolve implements Source.
func (c Chain) Resolve(ctx context.Context) (Credentials, error) {
	var errs []error
	for _, s := range c {
		creds, err := s.Resolve(ctx)
		if err == nil {
			return creds, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Credentials{}, ErrNoCredentials
	}
	return Credentials{}, errors.Join(errs...)
}
