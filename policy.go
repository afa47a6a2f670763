// policy.go — pluggable security policy for imports and host capabilities.
//
// The engine consults one AccessPolicy: CheckImport gates every package
// import (script and native alike), CheckCapability gates individual
// operations of the capability-guarded host packages (file system, process
// environment). The default policy allows everything; embedders running
// untrusted scripts install a restrictive one, typically loaded from a
// manifest (manifest.go).
package lyng

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AccessPolicy decides what a script may reach.
type AccessPolicy interface {
	// CheckImport is consulted before a package is resolved. A non-nil
	// error denies the import; the error text reaches the script as an
	// ImportException message.
	CheckImport(pkg string) error

	// CheckImportSymbol is consulted for each name of a selective import
	// (`import pkg { name }`) after the package itself is allowed.
	CheckImportSymbol(pkg, sym string) error

	// CheckCapability is consulted by host packages before privileged
	// operations, e.g. ("lyng.fs", "read").
	CheckCapability(pkg, op string) error
}

// AllowAllPolicy permits everything. The default for trusted embedding.
type AllowAllPolicy struct{}

func (AllowAllPolicy) CheckImport(string) error               { return nil }
func (AllowAllPolicy) CheckImportSymbol(string, string) error { return nil }
func (AllowAllPolicy) CheckCapability(string, string) error   { return nil }

// DenyAllPolicy refuses every import and capability. Useful as the base of
// expression-only sandboxes.
type DenyAllPolicy struct{}

func (DenyAllPolicy) CheckImport(pkg string) error {
	return errors.Errorf("imports are disabled by policy (%s)", pkg)
}

func (DenyAllPolicy) CheckImportSymbol(pkg, sym string) error {
	return errors.Errorf("import of %s.%s is disabled by policy", pkg, sym)
}

func (DenyAllPolicy) CheckCapability(pkg, op string) error {
	return errors.Errorf("capability %s.%s is disabled by policy", pkg, op)
}

// requireCapability converts a policy denial into the script-level
// AccessDeniedException at the call site. Denials are logged so embedders
// can audit probing scripts.
func (r *Runner) requireCapability(pkg, op string) {
	if err := r.interp.policy.CheckCapability(pkg, op); err != nil {
		r.interp.log.Warn("capability denied",
			zap.String("package", pkg), zap.String("op", op), zap.Error(err))
		r.throwErr(nativePos(), classAccessDenied, "%s", err.Error())
	}
}
