// Package selector builds the bounded, prioritised list of pages that the
// live scan visits.
//
// The list is deterministic for a given site inventory. It always starts
// with the home page and the login page, followed by commerce special pages,
// one archive or search page, one page per distinct template, pages with
// embedded shortcode markup and finally one recent item per public content
// type. When the candidates exceed the cap the tail of that order is dropped.
package selector
