package rewear

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"
)

const (
	envDBURL  = "DB_URL"
	envDBUser = "DB_USER"
	envDBPass = "DB_PASS"

	keyDBURL  = "db.url"
	keyDBUser = "db.user"
	keyDBPass = "db.pass"

	defaultDBURL  = "jdbc:mysql://localhost:3306/rewear_db?useSSL=false&serverTimezone=UTC"
	defaultDBUser = "root"
)

// Source records where a resolved credential came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
	SourceDefault Source = "default"
	SourceUnset   Source = "unset"
)

// Credentials is the resolved connection configuration for one run. It is
// built once at startup and passed by value.
type Credentials struct {
	URL      string
	User     string
	Password string

	URLSource      Source
	UserSource     Source
	PasswordSource Source
}

// ResolveCredentials applies env var, then properties file, then built-in
// default for each of url, user and password. Blank values count as unset.
// There is no built-in password.
func ResolveCredentials(getenv func(string) string, props map[string]string) Credentials {
	var c Credentials
	c.URL, c.URLSource = resolveValue(getenv, props, envDBURL, keyDBURL, defaultDBURL)
	c.User, c.UserSource = resolveValue(getenv, props, envDBUser, keyDBUser, defaultDBUser)
	c.Password, c.PasswordSource = resolveValue(getenv, props, envDBPass, keyDBPass, "")
	return c
}

func resolveValue(getenv func(string) string, props map[string]string, envKey, propKey, fallback string) (string, Source) {
	if getenv != nil {
		if v := strings.TrimSpace(getenv(envKey)); v != "" {
			return v, SourceEnv
		}
	}
	if v := strings.TrimSpace(props[propKey]); v != "" {
		return v, SourceFile
	}
	if fallback != "" {
		return fallback, SourceDefault
	}
	return "", SourceUnset
}

// loadProperties reads a Java-style key=value properties file. Values are
// taken literally: no ${...} expansion and no environment lookup. A missing
// file yields an empty map.
func loadProperties(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]string{}, nil
	}

	p, err := readPropertiesFile(path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func readPropertiesFile(path string) (*properties.Properties, error) {
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		p, err = properties.NewProperties(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	p.DisableExpansion = true
	return p, nil
}

// saveProperty sets key in the properties file, keeping the other keys and
// their comments, and restricts the file to its owner.
func saveProperty(path, key, value string) error {
	p, err := readPropertiesFile(path)
	if err != nil {
		return err
	}
	if _, _, err := p.Set(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if _, err := p.WriteComment(f, "# ", properties.UTF8); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restrict config file permissions: %w", err)
	}
	return nil
}

// propertyKeyFor maps the short names accepted by `rewear set` to file keys.
func propertyKeyFor(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "url", keyDBURL:
		return keyDBURL, nil
	case "user", keyDBUser:
		return keyDBUser, nil
	case "pass", "password", keyDBPass:
		return keyDBPass, nil
	default:
		return "", fmt.Errorf("unsupported setting %q (expected url|user|pass)", name)
	}
}
