// Package recipe loads product recipes from YAML files.
//
// A recipe describes the seam-series and seam structure of one product type together with the
// per-seam LWM inspection parameters used by the SCANMASTER sequencer:
//
//	type: 3
//	name: door-frame-left
//	seam_series:
//	  - number: 1
//	    seams:
//	      - duration: 250ms
//	        lwm: {active: true, program: 12}
//	      - duration: 180ms
//
// Seams are numbered by position starting at 1.
package recipe
