package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups this tool's secrets in the OS keychain.
const KeyringService = "catalog-sync"

// keyringGet is swapped in tests.
var keyringGet = keyring.Get

func searchKeyAccount(appID string) string {
	return "algolia:" + appID
}

// ResolveSecrets fills AlgoliaAPIKey from the OS keyring when the app ID is
// known but no key came from the file or environment. A missing keyring entry
// is not an error; search indexing is then simply disabled.
func (c *Config) ResolveSecrets() {
	if c.AlgoliaAPIKey != "" || strings.TrimSpace(c.AlgoliaAppID) == "" {
		return
	}
	key, err := keyringGet(KeyringService, searchKeyAccount(c.AlgoliaAppID))
	if err == nil && strings.TrimSpace(key) != "" {
		c.AlgoliaAPIKey = key
	}
}

// StoreSearchAPIKey saves the search API key for appID in the OS keyring.
func StoreSearchAPIKey(appID, key string) error {
	if strings.TrimSpace(appID) == "" {
		return errors.New("algolia app id is empty")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("api key is empty")
	}
	return keyring.Set(KeyringService, searchKeyAccount(appID), key)
}
