//go:build !rapidsnark

package proving

// NewNativeEngine fails unless the binary is built with the rapidsnark tag.
func NewNativeEngine() (Engine, error) {
	return nil, ErrNativeUnavailable
}
