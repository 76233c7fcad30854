package assets

import _ "embed"

// DefaultTexts is the built-in reply table used when no override file is set.
//
//go:embed texts.yaml
var DefaultTexts []byte
