// Package site loads the inventory of the audited installation.
//
// An inventory is a YAML (or JSON) document describing what the host
// application knows about itself: public URLs, published content, active
// components, theme directories, enqueued scripts and stored options. It
// is the concrete collaborator behind the page selector and the static
// analyzer.
package site
