// Package suite loads YAML suite files.
//
// A suite lists shell commands run as tests:
//
//	name: api smoke
//	env:
//	  BASE_URL: http://localhost:8080
//	tests:
//	  - name: health
//	    command: curl -s $BASE_URL/health
//	    expect:
//	      exitCode: 0
//	      json:
//	        status: ok
//	  - name: migrations
//	    command: ./migrate --dry-run
//	    category: todo
//
// Files are checked against a JSON Schema before they are decoded.
package suite
