// Package evidence is the sink of the live scan.
//
// Page collectors submit the cookie names and storage keys they observed,
// authorized by a scan token issued for the run. When the orchestrator has
// visited every page it asks the sink to finalize: the sink parses the
// visited pages with the content classifier, aggregates the buffered
// evidence per cookie and storage key, classifies each name against the
// reference database and returns the live result of the run.
//
// The sink is usable in process (Service) or over HTTP (Handler on the
// server side, Client on the collector and orchestrator side). Every HTTP
// response uses the same envelope:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"code": "invalid_token", "message": "..."}}
package evidence
