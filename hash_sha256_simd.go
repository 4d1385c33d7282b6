//go:build !noavx

package stratumcore

import simdsha "github.com/minio/sha256-simd"

func init() {
	sha256Sum = simdsha.Sum256
}

// SHA256ImplementationName reports which sha256 backend the package was
// built with.
func SHA256ImplementationName() string {
	return "sha256-simd"
}
