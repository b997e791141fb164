package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderMinio  = "minio"
	ProviderS3     = "s3"
	ProviderMemory = "memory"

	defaultProtocol       = "https"
	defaultEndpointSuffix = "core.windows.net"
	defaultRegion         = "us-east-1"
)

var ErrInvalidConnectionString = errors.New("invalid storage connection string")

// Account is the parsed form of a storage connection string:
// "Key=Value;Key=Value" pairs, keys matched case-insensitively.
type Account struct {
	Provider       string
	Protocol       string
	Name           string
	Key            string
	BlobEndpoint   string
	EndpointSuffix string
	Region         string
	TableEndpoint  string
}

func ParseConnectionString(raw string) (Account, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Account{}, fmt.Errorf("%w: empty", ErrInvalidConnectionString)
	}

	acct := Account{
		Provider:       ProviderMinio,
		Protocol:       defaultProtocol,
		EndpointSuffix: defaultEndpointSuffix,
		Region:         defaultRegion,
	}

	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return Account{}, fmt.Errorf("%w: malformed segment %q", ErrInvalidConnectionString, segment)
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "provider":
			acct.Provider = strings.ToLower(value)
		case "defaultendpointsprotocol":
			acct.Protocol = strings.ToLower(value)
		case "accountname":
			acct.Name = value
		case "accountkey":
			acct.Key = value
		case "blobendpoint":
			acct.BlobEndpoint = strings.TrimRight(value, "/")
		case "endpointsuffix":
			acct.EndpointSuffix = value
		case "region":
			acct.Region = value
		case "tableendpoint":
			acct.TableEndpoint = value
		}
	}

	if err := acct.validate(); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (a Account) validate() error {
	switch a.Provider {
	case ProviderMinio, ProviderS3, ProviderMemory:
	default:
		return fmt.Errorf("%w: unsupported provider %q", ErrInvalidConnectionString, a.Provider)
	}
	if a.Protocol != "http" && a.Protocol != "https" {
		return fmt.Errorf("%w: unsupported protocol %q", ErrInvalidConnectionString, a.Protocol)
	}
	if a.Provider == ProviderMinio && a.BlobEndpoint == "" && a.Name == "" {
		return fmt.Errorf("%w: AccountName or BlobEndpoint is required", ErrInvalidConnectionString)
	}
	return nil
}

// BlobBaseURL is the scheme and host that public blob URLs are built on.
func (a Account) BlobBaseURL() string {
	if a.BlobEndpoint != "" {
		if strings.Contains(a.BlobEndpoint, "://") {
			return a.BlobEndpoint
		}
		return a.Protocol + "://" + a.BlobEndpoint
	}

	switch a.Provider {
	case ProviderS3:
		return fmt.Sprintf("https://s3.%s.amazonaws.com", a.Region)
	case ProviderMemory:
		return "memory://" + a.accountHostName()
	default:
		return fmt.Sprintf("%s://%s", a.Protocol, a.accountHostName())
	}
}

func (a Account) accountHostName() string {
	name := a.Name
	if name == "" {
		name = "local"
	}
	return fmt.Sprintf("%s.blob.%s", name, a.EndpointSuffix)
}

// BlobURL returns the public location of a blob. The name is appended as-is.
func (a Account) BlobURL(container, name string) string {
	return a.BlobBaseURL() + "/" + container + "/" + name
}

// endpointHost strips the scheme from the blob endpoint; minio expects host[:port].
func (a Account) endpointHost() (host string, secure bool, err error) {
	base := a.BlobBaseURL()
	u, err := url.Parse(base)
	if err != nil {
		return "", false, fmt.Errorf("parse blob endpoint %q: %w", base, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("blob endpoint %q has no host", base)
	}
	return u.Host, u.Scheme == "https", nil
}
