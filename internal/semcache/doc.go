// Package semcache implements a semantic response cache: a bounded set of
// (query embedding, response) pairs matched by cosine similarity rather than
// exact string equality.
//
// Semantics:
//   - Lookup returns the FIRST entry whose similarity meets the threshold,
//     not the most similar one. Iteration order over the backing bucket is
//     unspecified, so which of several sufficiently-similar entries wins is
//     nondeterministic. Callers get *a* good-enough answer, never a promise
//     of the best one.
//   - The whole cache shares one sliding TTL: every Store refreshes the
//     bucket expiry to now+ttl. Entries do not expire individually.
//   - Capacity is enforced on insert by evicting oldest entries (by creation
//     timestamp) down to the configured bound. Enforcement is soft under
//     concurrent writers from multiple processes: the check-then-evict
//     sequence is not atomic across instances, so the cache can transiently
//     exceed the bound; the next insert retries eviction. In-process inserts
//     are serialized.
//   - The cache is best-effort everywhere: Lookup failures degrade to a miss
//     and Store failures are logged and dropped. A broken cache must never
//     fail the query it was meant to accelerate, which is why Store returns
//     nothing.
//
// The backing store is any hash-bucket KV offering five primitives (set
// field, read all fields, delete fields, expire bucket, count fields) —
// in production a Redis hash via go-redis, in tests an in-memory fake.
package semcache
