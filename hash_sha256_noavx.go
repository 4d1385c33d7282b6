//go:build noavx

package stratumcore

import stdsha "crypto/sha256"

func init() {
	sha256Sum = stdsha.Sum256
}

// SHA256ImplementationName reports which sha256 backend the package was
// built with.
func SHA256ImplementationName() string {
	return "crypto/sha256"
}
