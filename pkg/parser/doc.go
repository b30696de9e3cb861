// Package parser turns changelog files into the generic node tree consumed by
// the changelog package.
//
// Four formats are understood:
//
//   - YAML and JSON documents with a top level databaseChangeLog list
//   - XML documents rooted at a databaseChangeLog element
//   - formatted SQL files starting with a "--liquibase formatted sql" header
//   - plain SQL files, which become a single changeset
//
// Every format produces the same tree shape, so the changelog loader does not
// care where a changeset came from. A formatted SQL file such as
//
//	--liquibase formatted sql
//
//	--changeset bob:1 context:prod
//	CREATE TABLE person (id INT PRIMARY KEY);
//	--rollback DROP TABLE person;
//
// yields the same changeset as the equivalent YAML:
//
//	databaseChangeLog:
//	  - changeSet:
//	      id: "1"
//	      author: bob
//	      context: prod
//	      changes:
//	        - sql: CREATE TABLE person (id INT PRIMARY KEY);
//	      rollback: DROP TABLE person;
//
// Example usage:
//
//	pc := &changelog.ParseContext{FS: os.DirFS("db"), Parser: parser.New()}
//	cl, err := pc.Load("changelog.yaml")
package parser
