// Package techapp is the realtime core of a technician dispatch backend:
// streaming voice connections, session management, work order dispatch and
// office notifications.
//
// # Architecture
//
// The service is a set of registries wired together by cmd/dispatchd:
//
//	┌─────────────────────────────────────┐
//	│         Session Registry            │  Session lifecycle,
//	│  (create, expire, sweep, stats)     │  TTL enforcement
//	└─────────────────────────────────────┘
//	           ↓ acquires from
//	┌─────────────────────────────────────┐
//	│   Connection Pool / realtime.Conn   │  WebSocket streaming,
//	│  (reuse, fingerprint, TTL evict)    │  audio + event frames
//	└─────────────────────────────────────┘
//
//	┌─────────────────────────────────────┐
//	│        Work Order Registry          │  Status state machine,
//	│  (create, assign, complete, queue)  │  priority dispatch queue
//	└─────────────────────────────────────┘
//	           ↓ events feed
//	┌─────────────────────────────────────┐
//	│       Notification Pipeline         │  Trigger rules, unread
//	│  (manager → service → channels)     │  tracking, delivery
//	└─────────────────────────────────────┘
//	           ↓ delivers via
//	┌─────────────────────────────────────┐
//	│     signal hub  /  NATS channel     │  Office dashboard fan-out,
//	│                                     │  broker publish
//	└─────────────────────────────────────┘
//
// Cross-cutting packages: errors (classified error taxonomy), metric
// (Prometheus registry), health (component status aggregation), resource
// (tracked allocations with idle sweep and memory pressure monitoring),
// config (YAML + env), pkg/retry (exponential backoff).
//
// The HTTP surface lives in the api package; cmd/dispatchd exposes it
// together with /metrics and /healthz.
package techapp
