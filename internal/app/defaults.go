package app

// defaults apply to keys missing from the config file and the environment.
var defaults = map[string]any{
	"app.name":                   "OTPGate",
	"app.tz":                     "UTC",
	"app.node_id":                1,
	"app.maintenance.enabled":    false,
	"app.server.max_goroutine":   0,
	"app.server.cors":            "",
	"app.server.trusted_proxies": "",

	"app.server.shutdown_timeout_seconds": 10,

	"app.server.http.address":                     ":8080",
	"app.server.http.read_timeout_seconds":        10,
	"app.server.http.read_header_timeout_seconds": 5,
	"app.server.http.write_timeout_seconds":       20,
	"app.server.http.idle_timeout_seconds":        60,

	"instrument.enabled":                 false,
	"instrument.service_name":            "otpgate",
	"instrument.service_version":         "dev",
	"instrument.env":                     "local",
	"instrument.trace_sample_ratio":      1.0,
	"instrument.metric_interval_seconds": 15,
	"instrument.log_mask_fields":         "code,token,session_token,authorization",

	"database.pool.max_conns":                   10,
	"database.pool.min_conns":                   1,
	"database.pool.max_conn_lifetime_seconds":   3600,
	"database.pool.max_conn_idle_seconds":       300,
	"database.pool.health_check_period_seconds": 30,

	"redis.url":                    "redis://localhost:6379/0",
	"startup.ping_retries":         5,
	"startup.ping_timeout_seconds": 5,

	"mail.driver": "smtp",
	"mail.port":   587,

	"messaging.driver":                       "memory",
	"messaging.nats.name":                    "otpgate",
	"messaging.nats.max_reconnects":          60,
	"messaging.nats.timeout_seconds":         5,
	"messaging.nats.reconnect_wait_seconds":  2,
	"messaging.nats.ping_interval_seconds":   20,
	"messaging.nats.max_pings_outstanding":   3,
	"messaging.nats.retry_on_failed_connect": true,
	"messaging.kafka.dial_timeout_seconds":   10,
	"messaging.kafka.client_id":              "otpgate",

	"modules.adminauth.enabled":                              true,
	"modules.adminauth.challenge.strategy":                   "store",
	"modules.adminauth.otp.ttl_seconds":                      300,
	"modules.adminauth.guard.store":                          "redis",
	"modules.adminauth.guard.cooldown_seconds":               60,
	"modules.adminauth.guard.window_minutes":                 60,
	"modules.adminauth.guard.max_requests_per_window":        5,
	"modules.adminauth.guard.max_failed_attempts":            3,
	"modules.adminauth.guard.lockout_hours":                  1,
	"modules.adminauth.guard.global.enabled":                 false,
	"modules.adminauth.guard.global.window_minutes":          60,
	"modules.adminauth.guard.global.max_requests_per_window": 100,
	"modules.adminauth.session.ttl_hours":                    24,
	"modules.adminauth.delivery.timeout_seconds":             10,

	"modules.audit.enabled":              false,
	"modules.audit.consumer_enabled":     true,
	"modules.audit.consumer_concurrency": 4,
	"modules.audit.dedupe_ttl_hours":     24,
	"modules.audit.alerts.enabled":       true,
}
