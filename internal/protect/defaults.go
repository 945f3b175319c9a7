package protect

// DefaultPatterns are directory globs that usually hold credentials.
var DefaultPatterns = []string{
	"**/secrets/**",
	"**/.secrets/**",
	"**/credentials/**",
	"**/.ssh/**",
	"**/.aws/**",
	"**/.gnupg/**",
}

// DefaultNames are file base names that are never handed to a worker.
var DefaultNames = []string{
	".env",
	".env.*",
	"*.env",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
	"credentials.json",
	"service-account*.json",
}

// DefaultFileTypes are extensions of key and certificate stores.
var DefaultFileTypes = []string{
	".pem",
	".key",
	".p12",
	".pfx",
	".jks",
	".keystore",
	".kdbx",
}
