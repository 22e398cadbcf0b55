package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const templateHeader = "smppctl client profile. Durations use Go syntax (250ms, 10s, 5m).\n" +
	"bind.type is one of tx, rx, trx. dispatcher.kind is one of simple, threaded, executor.\n" +
	"Add a link.ssh section (host, user, key_path, known_hosts) to reach the SMSC through a bastion.\n"

// Template renders Default in the requested format ("toml" or "yaml").
func Template(format string) (string, error) {
	var (
		body []byte
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml":
		body, err = toml.Marshal(Default())
	case "yaml", "yml":
		body, err = yaml.Marshal(Default())
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}
	return commentLines(templateHeader) + "\n" + string(body), nil
}

// WriteTemplate writes Template to path, picking the format from the
// file extension.
func WriteTemplate(path string, overwrite bool) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func commentLines(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
