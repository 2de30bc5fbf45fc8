package main

import _ "embed"

// embeddedConfig holds the YAML defaults embedded at build time. Packagers
// may overwrite embed_config.yaml before compiling.
//
//go:embed embed_config.yaml
var embeddedConfig []byte
