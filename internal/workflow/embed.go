package workflow

import _ "embed"

//go:embed profiles.toml
var embeddedProfilesTOML []byte
