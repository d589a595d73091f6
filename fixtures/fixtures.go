package fixtures

import (
	_ "embed"
)

//go:embed config/config.yaml.template
var ConfigTemplate []byte

//go:embed db/embedded.yaml
var EmbeddedDB []byte
