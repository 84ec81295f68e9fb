package types

import (
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/samber/lo"
)

// Environment is the authority environment (tipo de ambiente) a document is
// transmitted to. The wire values are fixed by the authority's API.
type Environment string

const (
	// EnvironmentProduction issues documents with full legal effect
	EnvironmentProduction Environment = "1"
	// EnvironmentHomologation is the authority's staging environment
	EnvironmentHomologation Environment = "2"
)

func (e Environment) String() string {
	return string(e)
}

func (e Environment) Validate() error {
	allowed := []Environment{
		EnvironmentProduction,
		EnvironmentHomologation,
	}
	if !lo.Contains(allowed, e) {
		return ierr.NewError("invalid environment").
			WithHint("Environment must be 1 (production) or 2 (homologation)").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
