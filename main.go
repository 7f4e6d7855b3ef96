package main

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/otpgate/internal/app"
)

// @title           OTPGate API
// @version         1.0
// @description     OTPGate signs administrators in with one-time codes sent to an allow-listed email.
// @contact.name    Security Team
// @license.name    MIT
// @license.url     https://mit-license.org/
// @server          http://localhost:8080
// @securityDefinitions.apikey  BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the admin session token.
func main() {
	if err := app.New().Run(); err != nil {
		slog.Error("otpgate exited with error", "error", err)
		os.Exit(1)
	}
}
