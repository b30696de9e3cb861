// Package checksum implements the version tagged content hashes used to detect
// drift between a changelog and the history recorded in the database.
//
// Every stored checksum carries the version of the algorithm that produced it,
// rendered as "<version>:<md5 hex>". Older versions stay computable forever so
// history rows written by an older release still validate:
//
//	V7  legacy values stored without a prefix, hash of the raw bytes
//	V8  line endings normalised and surrounding whitespace trimmed
//	V9  line endings normalised and whitespace runs collapsed (latest)
//
// Example usage:
//
//	sum := checksum.Compute("CREATE TABLE person (id INT)", checksum.Latest)
//	fmt.Println(sum) // 9:...
//
//	stored, _ := checksum.Parse(row.MD5Sum)
//	if stored.Version() != checksum.Latest {
//		// recompute with stored.Version() to compare like with like
//	}
package checksum
