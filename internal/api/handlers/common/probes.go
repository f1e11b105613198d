package common

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/api"
)

// ProbeReadiness checks that the server can answer frame requests: the
// custody worker responds and the keystore is readable.
func ProbeReadiness(ctx context.Context, s *api.Server) []error {
	var errs []error

	if _, err := s.Worker.IsUnlocked(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "custody worker did not respond"))
	}

	if _, err := s.Keystore.Exists(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "keystore is not accessible"))
	}

	return errs
}

// ProbeLiveness checks that the custody worker is running and every
// configured path is writeable.
func ProbeLiveness(ctx context.Context, s *api.Server) []error {
	var errs []error

	if !s.Worker.Running() {
		errs = append(errs, errors.New("custody worker is not running"))
	}

	for _, dir := range s.Config.Management.ProbeWriteablePathsAbs {
		if err := ctx.Err(); err != nil {
			return append(errs, err)
		}
		if err := touch(filepath.Join(dir, s.Config.Management.ProbeWriteableTouchfile)); err != nil {
			errs = append(errs, errors.Wrapf(err, "path %s is not writeable", dir))
		}
	}

	return errs
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	return f.Close()
}
