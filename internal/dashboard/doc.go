// Package dashboard serves the AF Meter web dashboard.
//
// A minimal dashboard is embedded into the binary with go:embed. When a
// directory is configured and exists, assets are served from disk instead
// so a custom dashboard can be deployed without recompiling. Unknown paths
// fall back to index.html for client-side routing.
package dashboard
