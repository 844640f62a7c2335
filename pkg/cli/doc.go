// Package cli holds the shared plumbing of the bindgen command: YAML
// configuration with kubectl-style named contexts, the paths under
// ~/.bindkit/<app>, declaration loading and result output.
//
//	cfg, err := cli.LoadConfig("bindgen")
//	ctx, err := cfg.ResolveContext(name)
//	gen := ctx.GenOptions(hostImport)
package cli
