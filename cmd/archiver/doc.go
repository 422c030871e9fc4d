// Command archiver saves a web page and its assets into a storage backend.
//
// Architecture overview:
//   - One-shot mode: `archiver [-config path] [-prefix p] URL` runs a single page through the archive state machine
//     (fetch, parse, discover, resolve, persist) and prints the result as JSON. Artifacts are raw.html, index.html
//     with references rewritten to stored names, one file per asset named by the SHA-256 of its literal reference,
//     and the hashmap.txt manifest.
//   - Service mode: `archiver -serve` exposes internal/api.Server. POST /v1/archives records a run in the RunStore
//     (memory, or Postgres when db.dsn is set) and queues it on a bounded in-memory queue sized by
//     archiver.queue_depth. A fixed pool of archiver.concurrency run workers drains the queue; each run writes under
//     a "<run_id>/" prefix so runs can share one backend.
//   - Fetch pipeline: the page and every asset are fetched through the shared Colly client. When headless.enabled is
//     set, a heuristic detector can promote a JS shell page to a chromedp render; assets still use plain HTTP.
//   - Storage: storage.mode selects the local filesystem or a remote object store (GCS or S3-compatible via MinIO).
//   - Plumbing: Viper populates config from file and ARCHIVER_* env vars; zap provides structured logging;
//     Prometheus metrics are served on /metrics; a Pub/Sub event is published after each persisted run when
//     pubsub.project_id and pubsub.topic_name are set.
//
// Operational notes:
//   - Asset downloads within a run are bounded by archiver.workers. Only the orchestrating goroutine edits the
//     document, after the asset is in the backend.
//   - archiver.max_store_failures consecutive asset store failures abort the run as a backend outage.
//   - SIGINT/SIGTERM cancel in-flight runs; they are recorded as canceled and no manifest is written for them.
package main
