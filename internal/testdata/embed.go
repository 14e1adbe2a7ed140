package testdata

import _ "embed"

//go:embed configs/config.yaml
var TestConfig string

//go:embed configs/static.yaml
var TestStaticConfig string
