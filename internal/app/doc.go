// Package app is the composition root of the ConeDex service.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Stores, Providers, Application wiring and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	├── storage/            # Store interfaces with memory and postgres backends
//	├── services/           # Business rules, one package per aggregate
//	├── httpapi/            # REST API, admin audit ring, notification stream
//	├── system/             # Lifecycle manager
//	├── runtime/            # Process wiring from config to running server
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/conedex, cmd/conedexctl
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app (composition)
//	                               │
//	                               ├──► internal/app/services/*
//	                               │           │
//	                               │           └──► internal/app/storage
//	                               │
//	                               └──► hosted API wrappers
//	                                    (database, places, mailer, ai)
//
// Services never import each other's concrete types when a small interface
// will do; New wires the concrete services together. Every store defaults to
// the in-memory backend, so New(Stores{}, Providers{}, nil) yields a working
// application for tests and local development.
package app
