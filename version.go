package direct

import "github.com/blang/semver"

// CoreVersion is the compatibility version embedders can check before
// relying on wire-format or API details.
var CoreVersion = semver.MustParse("0.1.0")
