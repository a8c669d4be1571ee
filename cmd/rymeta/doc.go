// Package main hosts the rymeta command line entrypoint.
//
// Architecture overview:
//   - CLI: cmd builds the Cobra command tree (lookup, batch, cache, genres)
//     and injects a fully wired internal/app.App into each command's context.
//     Commands never construct collaborators themselves.
//   - Browser: internal/browser drives one persistent headless Chrome via
//     chromedp. All tabs share a single cookie jar; same-origin JSON and
//     form requests run as in-page fetches from a parked tab so they carry
//     the live session. Asset requests to third-party hosts are blocked at
//     the CDP fetch domain.
//   - Access layer: internal/access wraps every request with rate limiting
//     (spacing measured from the end of the previous call, jittered),
//     challenge detection, and identity rotation against the session
//     state in internal/session. Concurrent callers hitting the same
//     challenge or block are collapsed into a single fix.
//   - Scraper: internal/scraper resolves artist and release pages with a
//     cascading search (direct URL guess, visible listing, filtered
//     catalog query, per-section expansion) and scores candidates on
//     title similarity and year proximity. Results flow through the
//     file-backed cache in internal/cache and genre expansion in
//     internal/genres.
//   - Plumbing: Viper populates config from file and RYMETA_* env vars;
//     zap provides structured logging; Prometheus metrics are exported on
//     an optional chi-served endpoint.
//
// Run locally: go run ./cmd/rymeta lookup --config config.yaml "Radiohead" "OK Computer".
package main
