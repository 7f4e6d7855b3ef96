package stacktrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalPaths(t *testing.T) {
	raw := []byte(`goroutine 7 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
github.com/shandysiswandi/otpgate/internal/adminauth/usecase.(*Usecase).VerifyOTP(...)
	/src/otpgate/internal/adminauth/usecase/verify_otp.go:42 +0x1a
net/http.HandlerFunc.ServeHTTP(...)
	/usr/local/go/src/net/http/server.go:2294 +0x29
	/src/otpgate/internal/pkg/router/router.go:180
`)

	assert.Equal(t, []string{
		"internal/adminauth/usecase/verify_otp.go:42",
		"internal/pkg/router/router.go:180",
	}, InternalPaths(raw))

	assert.Empty(t, InternalPaths(nil))
}
