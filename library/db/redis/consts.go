package redis

const (
	keyPrefix = "codebase/"

	// KeyPrefixCodebaseStatus is the key prefix for cached codebase status records
	KeyPrefixCodebaseStatus = keyPrefix + "status/"
)
