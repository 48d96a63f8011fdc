package modules

import (
	"fmt"

	"github.com/simp-lee/gomount/internal/domain"
)

// NameConflictError reports two discovered modules declaring the same name.
type NameConflictError struct {
	Name         string
	Path         string
	ExistingPath string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("module name conflict: module %s at %s conflicts with %s", e.Name, e.Path, e.ExistingPath)
}

func (e *NameConflictError) Unwrap() error {
	return domain.ErrModuleNameConflict
}

// MissingDependencyError reports a requirement that names no discovered module.
type MissingDependencyError struct {
	Module      string
	Requirement string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("module %s requirement %s is missing", e.Module, e.Requirement)
}

func (e *MissingDependencyError) Unwrap() error {
	return domain.ErrMissingDependency
}
