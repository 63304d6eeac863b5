// Package secrets detects and redacts credentials in changeset content
// before it is embedded.
//
// Detection uses the gitleaks default rule set. Each detected secret is
// replaced with a [REDACTED:<rule>:<preview>] marker so the surrounding diff
// still reads naturally. Allowlists come from a project .gitleaks.toml and an
// optional user TOML file.
package secrets
