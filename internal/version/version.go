package version

// Current is the semver version of this module, without a "v" prefix.
const Current = "0.1.0"
