// Package config loads gateway configuration from a single YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingFile indicates the configuration file did not exist; a template
// has been written in its place and the process should exit non-zero.
var ErrMissingFile = errors.New("config: file missing, template written")

// Account describes one exchange account the gateway can serve.
type Account struct {
	Name           string `yaml:"name"`
	Exchange       string `yaml:"exchange"`
	SubAccountName string `yaml:"sub_account_name,omitempty"`
	TestNet        bool   `yaml:"test_net"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	// Passphrase is required by exchanges that bind keys to one, okx only.
	Passphrase string `yaml:"passphrase,omitempty"`
}

// Endpoint carries the upstream URL slots for one exchange.
type Endpoint struct {
	APIPublic   string `yaml:"api_public"`
	WSPublic    string `yaml:"ws_public"`
	APIAuth     string `yaml:"api_auth"`
	WSAuth      string `yaml:"ws_auth"`
	APITest     string `yaml:"api_test,omitempty"`
	WSTest      string `yaml:"ws_test,omitempty"`
	WSPublicMbr string `yaml:"ws_public_mbr,omitempty"`
}

// File is the root of the configuration document.
type File struct {
	Accounts []Account           `yaml:"accounts"`
	Endpoint map[string]Endpoint `yaml:"endpoint"`
}

// Load reads and validates the configuration at path. When the file does not
// exist, a commented template is written there and ErrMissingFile returned.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeTemplate(path); writeErr != nil {
				return nil, fmt.Errorf("config: write template: %w", writeErr)
			}
			return nil, ErrMissingFile
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks the document for internal consistency.
func (f *File) Validate() error {
	if len(f.Accounts) == 0 {
		return errors.New("config: no accounts defined")
	}
	seen := make(map[string]struct{}, len(f.Accounts))
	for i, acct := range f.Accounts {
		name := strings.TrimSpace(acct.Name)
		if name == "" {
			return fmt.Errorf("config: accounts[%d]: empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("config: duplicate account name %q", name)
		}
		seen[name] = struct{}{}
		exchange := strings.TrimSpace(acct.Exchange)
		if exchange == "" {
			return fmt.Errorf("config: account %q: empty exchange", name)
		}
		if _, ok := f.Endpoint[exchange]; !ok {
			return fmt.Errorf("config: account %q: no endpoint table for exchange %q", name, exchange)
		}
	}
	for exchange, ep := range f.Endpoint {
		if strings.TrimSpace(ep.APIPublic) == "" || strings.TrimSpace(ep.WSPublic) == "" {
			return fmt.Errorf("config: endpoint %q: api_public and ws_public are required", exchange)
		}
	}
	return nil
}

// AccountByName returns the account with the given name.
func (f *File) AccountByName(name string) (Account, bool) {
	for _, acct := range f.Accounts {
		if acct.Name == name {
			return acct, true
		}
	}
	return Account{}, false
}

// EndpointFor resolves the URL slots for the account, honouring test_net.
func (f *File) EndpointFor(acct Account) (Endpoint, error) {
	ep, ok := f.Endpoint[acct.Exchange]
	if !ok {
		return Endpoint{}, fmt.Errorf("config: no endpoint table for exchange %q", acct.Exchange)
	}
	if acct.TestNet {
		if ep.APITest == "" || ep.WSTest == "" {
			return Endpoint{}, fmt.Errorf("config: exchange %q: test_net requested but api_test/ws_test unset", acct.Exchange)
		}
		ep.APIPublic = ep.APITest
		ep.APIAuth = ep.APITest
		ep.WSPublic = ep.WSTest
		ep.WSAuth = ep.WSTest
	}
	if ep.APIAuth == "" {
		ep.APIAuth = ep.APIPublic
	}
	if ep.WSAuth == "" {
		ep.WSAuth = ep.WSPublic
	}
	return ep, nil
}

const template = `# Gateway configuration.
# Fill in at least one account and restart the service.
accounts:
  - name: Demo_Binance
    exchange: binance
    test_net: true
    api_key: "*yourApiKey*"
    api_secret: "*yourApiSecret*"

endpoint:
  binance:
    api_public: https://api.binance.com
    ws_public: wss://stream.binance.com:9443
    api_auth: https://api.binance.com
    ws_auth: wss://stream.binance.com:9443
    api_test: https://testnet.binance.vision
    ws_test: wss://stream.testnet.binance.vision
  bitfinex:
    api_public: https://api-pub.bitfinex.com
    ws_public: wss://api-pub.bitfinex.com/ws/2
    api_auth: https://api.bitfinex.com
    ws_auth: wss://api.bitfinex.com/ws/2
  huobi:
    api_public: https://api.huobi.pro
    ws_public: wss://api.huobi.pro/ws
    api_auth: https://api.huobi.pro
    ws_auth: wss://api.huobi.pro/ws/v2
    ws_public_mbr: wss://api.huobi.pro/feed
  okx:
    api_public: https://www.okx.com
    ws_public: wss://ws.okx.com:8443/ws/v5/public
    api_auth: https://www.okx.com
    ws_auth: wss://ws.okx.com:8443/ws/v5/private
    ws_public_mbr: wss://ws.okx.com:8443/ws/v5/business
`

func writeTemplate(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
