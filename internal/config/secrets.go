package config

// Redacted returns a copy of the config with secrets replaced by "***". Use
// it when logging or printing the active configuration.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Voucher.PrivateKey)
	redact(&out.Voucher.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.PrincipalSecret)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	if c.Server.APIKeys != nil {
		out.Server.APIKeys = make([]string, len(c.Server.APIKeys))
		for i, k := range c.Server.APIKeys {
			out.Server.APIKeys[i] = k
			redact(&out.Server.APIKeys[i])
		}
	}

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Engine.Resolvers = append([]string(nil), c.Engine.Resolvers...)
	out.Engine.BonusTiers = append([]BonusTierConfig(nil), c.Engine.BonusTiers...)
	out.Ledger.Genesis = append([]GenesisConfig(nil), c.Ledger.Genesis...)
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), c.Notify.Events...)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
