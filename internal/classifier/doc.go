// Package classifier inspects served HTML for third-party services.
//
// Three marker tables (social, third-party content and statistics) map a
// service slug to literal markers; a service is reported when any of its
// markers occurs in the page, ignoring case. Tracking identifiers are
// extracted with regular expressions and reported only in redacted form.
// Analytics families whose loader scripts appear more than once are
// flagged as double installs.
package classifier
