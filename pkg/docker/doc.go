// Package docker runs disposable ClickHouse sandboxes for trying changelogs
// before they reach a real database.
//
// A Sandbox wraps a testcontainers ClickHouse container. It is labelled with
// LabelSandbox so that Engine can list and remove sandboxes started by other
// processes through the Docker API.
//
// # Key Features
//
//   - Disposable ClickHouse containers with an optional config.d mount
//   - clickhouse:// URLs usable directly with database.Open
//   - Listing and removal of running sandboxes
//
// # Usage Example
//
//	sb := docker.New(docker.Options{
//		Image:     "clickhouse/clickhouse-server:25.7",
//		ConfigDir: "db/config.d",
//	})
//
//	ctx := context.Background()
//	defer sb.Stop(ctx)
//
//	if err := sb.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	url, _ := sb.URL(ctx)
//	db, err := database.Open(ctx, database.Config{URL: url})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := executor.New(executor.Config{DB: db}).Update(ctx, cl, executor.Options{})
package docker
