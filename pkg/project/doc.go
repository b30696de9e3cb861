// Package project scaffolds changekeeper projects.
//
// Initialize is idempotent: it only creates what is missing, so it can be run
// against an existing repository to add the configuration file without
// touching its changelogs.
//
// # Project Structure
//
//	project-root/
//	├── changekeeper.yaml      # database, selection and parameters
//	└── db/
//	    ├── changelog.yaml     # root changelog (yaml, sql or xml)
//	    └── changes/           # picked up by the root changelog's includeAll
//
// # Usage Example
//
//	cfg, err := project.New(".").Initialize(project.InitOptions{Format: "sql"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	db, err := cfg.OpenDatabase(ctx, os.Stdout)
package project
