// Package api serves the HTTP control surface of the translation
// service.
//
// # Endpoints
//
// Task lifecycle, under /api/v1:
//
//	POST /tasks                      multipart submission, enqueue a task
//	POST /upload                     alias of POST /tasks
//	GET  /tasks                      list tasks, ?status= and ?limit=
//	GET  /tasks/{id}                 status record
//	GET  /tasks/{id}/results         packed results, completed tasks only
//	POST /tasks/{id}/cancel          cooperative cancellation
//	POST /tasks/{id}/retry           requeue a failed task
//	GET  /tasks/statistics/summary   per-status counts
//	GET  /story/{name}/text          single content item by story name
//
// Health and introspection:
//
//	GET /api/v1/health               aggregate health, always 200
//	GET /api/v1/health/workers       live worker records
//	GET /api/v1/health/metrics       task counts plus host sample
//	GET /api/v1/health/store         store ping, 503 on failure
//	GET /api/v1/health/system        raw cpu, memory and disk numbers
//	GET /                            service banner
//	GET /metrics                     Prometheus exposition
//
// # Errors
//
// Every error body is the same envelope:
//
//	{"detail": "Task not found"}
//
// Handlers log internal failures and answer with a generic detail
// string; wrapped causes and stack traces never reach the client.
//
// # Usage
//
//	srv := api.NewServer(cfg, api.Deps{
//		Store:      st,
//		Repo:       repo,
//		Dispatcher: disp,
//		Results:    res,
//		Uploads:    up,
//		Workers:    registry,
//		System:     engine.SystemMetrics{},
//		Version:    version,
//	})
//	go srv.Start(cfg.APIAddr())
//	...
//	srv.Shutdown(ctx)
package api
