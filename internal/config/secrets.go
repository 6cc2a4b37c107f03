package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***".
// Use this when logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Venues.Kalshi.SignerSecret)
	redact(&out.Venues.Kalshi.SecretPassword)
	redact(&out.Venues.Polymarket.SignerSecret)
	redact(&out.Venues.Polymarket.SecretPassword)

	redact(&out.Redis.Password)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Pairs = append([]PairConfig(nil), cfg.Pairs...)
	out.Fees.MakerMarkets = cloneStrings(cfg.Fees.MakerMarkets)
	out.Trading.DisabledVenues = cloneStrings(cfg.Trading.DisabledVenues)
	out.Kafka.Brokers = cloneStrings(cfg.Kafka.Brokers)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
