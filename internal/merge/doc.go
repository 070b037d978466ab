// Package merge fuses static findings and live evidence into one service
// view.
//
// BuildServiceMap runs a fixed sequence of passes over a record table
// keyed by model.NormalizeKey:
//
//  1. seed: one potential record per known tracking component
//  2. scripts: enqueued tracking scripts attach to the record owning their
//     host, or create an "other" record named after the host
//  3. options: configuration hits attach to the record of their service
//  4. theme: template hits attach by service, then by domain
//  5. live cookies: consent-requiring cookies confirm their record
//  6. content: detected services confirm every fuzzily matching record
//
// A record's status never moves back from confirmed. The result is
// ordered confirmed first, then by category priority.
package merge
