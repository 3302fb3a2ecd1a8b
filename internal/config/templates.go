package config

import (
	"fmt"
	"os"
)

// Template returns a commented starter config suitable for a fresh host.
func Template() string {
	return bootTemplate
}

// WriteTemplate writes the starter config to path. Unless overwrite is
// set, an existing file is left untouched.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(bootTemplate), 0o600)
}

const bootTemplate = `host_version = "29.1"
# data_dir = "~/.bootctl"

packs = [
    # "pack-a",
]

[trust]
# never | ask | always
policy = "ask"
file = "/etc/ssl/certs/ca-certificates.crt"

[transport]
# Extra client command templates, tried in addition to the built-in ones.
# %t is the trust file, %h the host, %p the port.
clients = [
    # "stunnel-client --ca %t --connect %h:%p",
]
handshake_timeout = "30s"
poll_interval = "100ms"

# Uncomment to replace the built-in fallback repositories.
# [[repositories]]
# name = "mirror"
# url = "https://mirror.example.com/packs"
`
