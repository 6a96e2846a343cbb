// Package configs embeds the configuration template written by
// `tinyrerank config init`.
//
// The template lists every setting at its default value. Optional settings
// whose default depends on the machine are left commented out.
package configs

import _ "embed"

// ConfigTemplate is the commented default configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
