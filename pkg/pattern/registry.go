package pattern

// DefaultDefs is the declarative pattern set loaded at process init. Each
// row is data, not code: a regex, a category/severity pair, and an optional
// validator. The regexes below are adapted from real vendor-specific
// detectors (AWS, private-key PEM blocks, JWT, Mailgun, GitHub, npm, GCP,
// Postgres, JDBC, Docker Hub) collapsed into one table instead of one Go
// package per vendor.
var DefaultDefs = []Def{
	{
		ID:             "aws-access-key-id",
		Name:           "AWS Access Key ID",
		Category:       CategorySecrets,
		Severity:       SeverityCritical,
		Regex:          `\b((?:AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16})\b`,
		BaseConfidence: 0.6,
		MinLen:         20,
		MaxLen:         20,
	},
	{
		ID:             "private-key-block",
		Name:           "Private Key",
		Category:       CategorySecrets,
		Severity:       SeverityCritical,
		Regex:          `(?i)-----\s*?BEGIN[ A-Z0-9_-]*?PRIVATE KEY\s*?-----[\s\S]*?-----\s*?END[ A-Z0-9_-]*? PRIVATE KEY\s*?-----`,
		Validator:      validatePrivateKeyBlock,
		BaseConfidence: 0.7,
	},
	{
		ID:             "jwt",
		Name:           "JSON Web Token",
		Category:       CategorySecrets,
		Severity:       SeverityMedium,
		Regex:          `\b((?:eyJ|ewogIC|ewoid)[A-Za-z0-9_-]{12,}={0,2}\.(?:eyJ|ewo)[A-Za-z0-9_-]{12,}={0,2}\.[A-Za-z0-9_-]{12,})\b`,
		Validator:      validateJWTShape,
		BaseConfidence: 0.4,
		MinLen:         40,
	},
	{
		ID:             "mailgun-token-original",
		Name:           "Mailgun Token",
		Category:       CategorySecrets,
		Severity:       SeverityHigh,
		Regex:          `\bmailgun[a-zA-Z0-9_=\-]{0,20}([a-zA-Z-0-9]{72})\b`,
		BaseConfidence: 0.5,
	},
	{
		ID:             "mailgun-token-key",
		Name:           "Mailgun Key Token",
		Category:       CategorySecrets,
		Severity:       SeverityHigh,
		Regex:          `\b(key-[a-z0-9]{32})\b`,
		BaseConfidence: 0.5,
	},
	{
		ID:             "mailgun-token-hex",
		Name:           "Mailgun Hex Token",
		Category:       CategorySecrets,
		Severity:       SeverityHigh,
		Regex:          `\b([a-f0-9]{32}-[a-f0-9]{8}-[a-f0-9]{8})\b`,
		BaseConfidence: 0.45,
	},
	{
		ID:             "github-pat",
		Name:           "GitHub Personal Access Token",
		Category:       CategorySecrets,
		Severity:       SeverityCritical,
		Regex:          `\b((?:ghp|gho|ghu|ghs|ghr|github_pat)_[a-zA-Z0-9_]{36,255})\b`,
		BaseConfidence: 0.7,
	},
	{
		ID:             "npm-token",
		Name:           "npm Access Token",
		Category:       CategorySecrets,
		Severity:       SeverityHigh,
		Regex:          `(?:_authToken|(?i:npm[_\-.]?token))['"]?[ \t]*[=:]?(?:[ \t]*['"]?)?([a-zA-Z0-9\-_.+=/]{5,})`,
		BaseConfidence: 0.4,
		Validator:      validateNotURL,
	},
	{
		ID:             "gcp-service-account-json",
		Name:           "GCP Service Account Key",
		Category:       CategorySecrets,
		Severity:       SeverityCritical,
		Regex:          `\{[^{]+auth_provider_x509_cert_url[^}]+\}`,
		BaseConfidence: 0.6,
	},
	{
		ID:             "postgres-connection-uri",
		Name:           "Postgres Connection URI",
		Category:       CategorySecrets,
		Severity:       SeverityHigh,
		Regex:          `(?i)postgres(?:ql)?://\S+`,
		Validator:      validatePostgresURI,
		BaseConfidence: 0.5,
	},
	{
		ID:             "jdbc-connection-uri",
		Name:           "JDBC Connection URI",
		Category:       CategoryConfigurations,
		Severity:       SeverityMedium,
		Regex:          `(?i)jdbc:[\w]{3,10}:[^\s"']{0,512}`,
		BaseConfidence: 0.4,
	},
	{
		ID:             "dockerhub-access-token",
		Name:           "Docker Hub Access Token",
		Category:       CategorySecrets,
		Severity:       SeverityHigh,
		Regex:          `\bdckr_pat_[a-zA-Z0-9_-]{27}\b`,
		BaseConfidence: 0.6,
	},
	{
		ID:             "url-embedded-basic-auth",
		Name:           "Credentials Embedded in URL",
		Category:       CategoryVulnerabilities,
		Severity:       SeverityMedium,
		Regex:          `https?://[^/\s:@]+:[^/\s:@]+@[^/\s]+`,
		BaseConfidence: 0.5,
	},
}
