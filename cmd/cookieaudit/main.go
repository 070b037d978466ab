// Package main provides the entry point for the cookieaudit CLI.
//
// cookieaudit audits a website for cookies, browser storage and
// third-party services that need consent. It combines a static analysis
// of the installed components with a live scan of representative pages.
//
// Usage:
//
//	cookieaudit scan --site site.yaml
//	cookieaudit export --site site.yaml
//
// See --help for all available options.
package main

func main() {
	Execute()
}
