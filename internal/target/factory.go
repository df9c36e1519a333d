package target

import (
	"fmt"
	"strings"
)

// NewTarget creates a Target from cfg. Network backends are wrapped in a
// RetryTarget when cfg.MaxRetries > 0; memory targets never are.
func NewTarget(cfg Config) (Target, error) {
	var (
		t   Target
		err error
	)

	switch cfg.Type {
	case TypeS3:
		t, err = newS3Target(cfg)
	case TypeAzure:
		t, err = newAzureTarget(cfg)
	case TypeGCS:
		t, err = newGCSTarget(cfg)
	case TypeSFTP:
		t, err = newSFTPTarget(cfg)
	case TypeMemory:
		return GetOrCreateMemoryTarget(cfg.Name), nil
	default:
		return nil, fmt.Errorf("unsupported target type: %q (must be one of %s)", cfg.Type, strings.Join(Types, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s target %q: %w", cfg.Type, cfg.Name, err)
	}

	if cfg.MaxRetries > 0 {
		t = NewRetryTarget(t, cfg.MaxRetries, cfg.RetryBackoff)
	}
	return t, nil
}
