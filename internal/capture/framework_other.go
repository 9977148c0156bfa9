//go:build !linux && !darwin

package capture

// NewNativeFramework returns nil: this OS has no native framework; capture goes
// through the agent
func NewNativeFramework(opts FrameworkOptions) NativeFramework {
	return nil
}
