// Package reporter proactively pushes device state to the vendor's
// device registry so the assistant platform stays current without
// polling.
//
// # Architecture
//
// A single goroutine runs a fixed-interval cycle:
//
//	snapshot store -> delta check -> shape payload -> token -> POST
//
// Delta suppression keys off the store's revision counter together with
// each device's online flag: a cycle is skipped only when no reading has
// been applied since the last successful push and no device has crossed
// the staleness window. A sensor going silent is therefore reported as
// offline exactly once. The snapshot is taken before any network I/O so
// no store lock is ever held across a push.
//
// Authentication uses a service credential, never a user token: a
// short-lived signed assertion is exchanged at the vendor token endpoint
// for a bearer token, which is cached until shortly before expiry. A 4xx
// from the registry invalidates the cache so the next attempt
// re-acquires.
//
// Failures are contained. Transport errors and 5xx responses retry with
// capped exponential backoff inside the cycle; when the attempt budget
// is exhausted the cycle is dropped with a warning and the next cycle
// runs on schedule.
//
// # Usage
//
//	rep, err := reporter.New(reporter.Options{
//		Config: cfg.Reporter,
//		Store:  store,
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	rep.Start(ctx)
//	defer rep.Close()
package reporter
