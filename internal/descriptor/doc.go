// Package descriptor loads schema definition files for the CLI.
//
// A definition names a schema and lists its properties. It can be
// written in YAML:
//
//	name: person
//	properties:
//	  - name: age
//	    type: {kind: number}
//	  - name: status
//	    type: {kind: enum, values: [active, retired]}
//
// or in CUE, where the file is unified with the #Schema definition
// before it is decoded, so typos and wrong kinds are reported with
// their source position:
//
//	name: "person"
//	properties: [
//		{name: "age", type: kind: "number"},
//	]
//
// The format is chosen by file extension (.yaml, .yml, .json or .cue).
package descriptor
