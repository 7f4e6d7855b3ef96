package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/otpgate/internal/adminauth"
	"github.com/shandysiswandi/otpgate/internal/audit"
)

const minSecretSize = 32

func (a *App) initModules() {
	if a.config.GetBool("modules.adminauth.enabled") {
		secret := a.config.GetBinary("modules.adminauth.secret")
		if len(secret) < minSecretSize {
			slog.Error("failed to init module adminauth, secret must be base64 of at least 32 bytes", "size", len(secret))
			os.Exit(1)
		}

		keys, err := adminauth.DeriveKeys(secret)
		if err != nil {
			slog.Error("failed to derive adminauth keys", "error", err)
			os.Exit(1)
		}

		if err := adminauth.New(adminauth.Dependency{
			CacheConn:  a.cacheConn,
			Goroutine:  a.goroutine,
			Router:     a.router,
			Messaging:  a.messaging,
			Mail:       a.mail,
			Config:     a.config,
			Instrument: a.ins,
			UID:        a.uid,
			UUID:       a.uuid,
			Clock:      a.clock,
			Validator:  a.validator,
			Keys:       keys,
		}); err != nil {
			slog.Error("failed to init module adminauth", "error", err)
			os.Exit(1)
		}
	}

	if a.config.GetBool("modules.audit.enabled") {
		if err := audit.New(audit.Dependency{
			Ctx:        a.ctx,
			DBConn:     a.dbConn,
			CacheConn:  a.cacheConn,
			Messaging:  a.messaging,
			Router:     a.router,
			Mail:       a.mail,
			Config:     a.config,
			Instrument: a.ins,
			UUID:       a.uuid,
			Clock:      a.clock,
			Goroutine:  a.goroutine,
			Validator:  a.validator,
		}); err != nil {
			slog.Error("failed to init module audit", "error", err)
			os.Exit(1)
		}
	}
}
