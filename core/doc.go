// Package core contains the interview scoring domain: the session state
// machine, the scoring job queue contracts, the job runner and the service
// that wires them. Storage, transport and provider adapters depend on this
// package; core must not depend on them.
package core
